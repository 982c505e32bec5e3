package executor

import (
	"fmt"
	"strings"
)

// renderCommand turns a JobType/Job "command" field — a JSON string or an
// array of JSON strings — into the fragment of a shell -c argument. A
// string is used verbatim; an array has each element double-quoted with
// backslashes and embedded double quotes backslash-escaped, joined by
// single spaces. An absent value renders as "".
func renderCommand(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, quoteArg(s))
		}
		return strings.Join(parts, " "), true
	default:
		return "", false
	}
}

// quoteArg wraps s in double quotes, escaping backslashes and embedded
// double quotes with a leading backslash.
func quoteArg(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf(`"%s"`, escaped)
}

// mergeEnvironment merges job environment over metadata environment (job
// wins on conflict). Non-string values are skipped.
func mergeEnvironment(meta, job map[string]interface{}) []string {
	merged := make(map[string]string)
	applyEnv(merged, meta)
	applyEnv(merged, job)

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func applyEnv(into map[string]string, src map[string]interface{}) {
	for k, v := range src {
		if s, ok := v.(string); ok {
			into[k] = s
		}
		// non-string values are silently skipped per the base design
		// (a warning belongs in the caller, which has a logger).
	}
}
