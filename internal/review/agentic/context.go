package agentic

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

// LoadProjectContext reads the project-context document at path. Any
// failure degrades to the default context; context is advisory and
// must never fail the pipeline.
func LoadProjectContext(path string) ProjectContext {
	if path == "" {
		return DefaultProjectContext()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return DefaultProjectContext()
	}
	var ctx ProjectContext
	if err := json.Unmarshal(raw, &ctx); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("Malformed project context, using defaults")
		return DefaultProjectContext()
	}
	if ctx.Name == "" {
		ctx.Name = "Default Project"
	}
	return ctx
}
