package permission

import "strings"

// forbiddenSubstrings are shell metacharacter sequences that make a
// command string unsafe to ever treat as a single executable
// invocation, whether for allowlist matching or hook execution.
var forbiddenSubstrings = []string{
	"&&", "||", ";", "|", "`", "$(", "${", "<(", ">(", "\n", "\r",
}

// ContainsForbidden reports whether s contains any forbidden
// metacharacter sequence.
func ContainsForbidden(s string) bool {
	for _, p := range forbiddenSubstrings {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// IsCommandAllowed reports whether command matches the allowlist: it
// must be non-empty after trimming, contain no forbidden
// metacharacter, and match at least one allowlist entry either
// exactly, as a space-delimited prefix, or by the command's executable
// base name (the first whitespace-delimited token). Glob characters in
// allowlist entries are never treated as wildcards.
func IsCommandAllowed(command string, allowlist []string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false
	}
	if ContainsForbidden(trimmed) {
		return false
	}

	base := trimmed
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		base = trimmed[:i]
	}

	for _, entry := range allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == trimmed {
			return true
		}
		if strings.HasPrefix(trimmed, entry) {
			rest := trimmed[len(entry):]
			if len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t') {
				return true
			}
		}
		if entry == base {
			return true
		}
	}
	return false
}
