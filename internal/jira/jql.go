package jira

import (
	"fmt"
	"strings"
)

// escapeJQL escapes backslashes and quotes for embedding in a JQL
// string literal.
func escapeJQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// tokenize keeps up to max whitespace-separated words of at least
// minLen characters.
func tokenize(text string, minLen, max int) []string {
	var tokens []string
	for _, w := range strings.Fields(text) {
		if len(w) < minLen {
			continue
		}
		tokens = append(tokens, w)
		if len(tokens) >= max {
			break
		}
	}
	return tokens
}

// buildQueries produces an ordered list of focused JQL queries, from
// high-recall token matches to a high-precision MR URL match, plus
// time-based narrowing on the MR creation date and a recency window.
func buildQueries(projectKeys []string, title, description string, labels []string, createdAt, window, mrURL string) []string {
	prefix := ""
	if len(projectKeys) > 0 {
		prefix = fmt.Sprintf("project in (%s) AND ", strings.Join(projectKeys, ","))
	}
	var queries []string
	addOr := func(field string, tokens []string) {
		if len(tokens) == 0 {
			return
		}
		clauses := make([]string, 0, len(tokens))
		for _, t := range tokens {
			clauses = append(clauses, fmt.Sprintf(`%s ~ "%s"`, field, escapeJQL(t)))
		}
		queries = append(queries, fmt.Sprintf("%s(%s)", prefix, strings.Join(clauses, " OR ")))
	}

	titleTokens := tokenize(title, 3, 6)
	addOr("summary", titleTokens)
	addOr("description", titleTokens)
	addOr("description", tokenize(description, 5, 6))

	if len(labels) > 0 {
		capped := labels
		if len(capped) > 5 {
			capped = capped[:5]
		}
		quoted := make([]string, 0, len(capped))
		for _, l := range capped {
			quoted = append(quoted, fmt.Sprintf(`"%s"`, escapeJQL(l)))
		}
		queries = append(queries, fmt.Sprintf("%s(labels in (%s))", prefix, strings.Join(quoted, ",")))
	}
	if mrURL != "" {
		queries = append(queries, fmt.Sprintf(`%s(description ~ "%s")`, prefix, escapeJQL(mrURL)))
	}
	// Time-based narrowing: date-only avoids JQL time-format issues.
	if createdAt != "" {
		dateOnly := strings.SplitN(createdAt, "T", 2)[0]
		queries = append(queries, fmt.Sprintf(`%screated >= "%s"`, prefix, escapeJQL(dateOnly)))
	}
	if window != "" {
		queries = append(queries, fmt.Sprintf("%supdated >= %s", prefix, window))
	}
	if len(queries) == 0 {
		if prefix != "" {
			queries = append(queries, strings.TrimSuffix(prefix, " AND "))
		} else {
			queries = append(queries, "ORDER BY updated DESC")
		}
	}
	return queries
}
