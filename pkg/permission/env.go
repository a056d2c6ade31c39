package permission

import (
	"regexp"
	"strings"
)

// dangerousEnvKeys are stripped case-insensitively from any
// caller-supplied environment, since they can redirect dynamic linking,
// module search paths, or interpreter startup behavior.
var dangerousEnvKeys = map[string]bool{
	"LD_PRELOAD":        true,
	"LD_LIBRARY_PATH":   true,
	"PATH":              true,
	"HOME":              true,
	"NODE_OPTIONS":      true,
	"PYTHONPATH":        true,
	"PYTHONSTARTUP":     true,
	"PYTHONHOME":        true,
	"JAVA_TOOL_OPTIONS": true,
	"_JAVA_OPTIONS":     true,
	"CLASSPATH":         true,
}

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxEnvValueBytes = 4096

// SanitizeEnv filters a caller-supplied environment map down to safe
// keys and bounded values: dangerous keys are dropped, malformed keys
// are dropped, values are truncated at 4096 bytes, and null bytes are
// stripped.
func SanitizeEnv(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if dangerousEnvKeys[strings.ToUpper(k)] {
			continue
		}
		if !envKeyPattern.MatchString(k) {
			continue
		}
		v = strings.ReplaceAll(v, "\x00", "")
		if len(v) > maxEnvValueBytes {
			v = v[:maxEnvValueBytes]
		}
		out[k] = v
	}
	return out
}
