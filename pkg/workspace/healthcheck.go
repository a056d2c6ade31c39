package workspace

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/podexhq/coordinator/pkg/dockerhost"
)

// Check is the closed tagged union of health-check variants. Each
// variant carries its own strongly-typed configuration rather than the
// Any-typed parser-config map the original source used, so the compiler
// enforces that every mode's config is complete.
//
// The spec's own default behavior — run `echo healthy`, pass iff exit
// code is zero — is exactly the zero-value ExitCodeCheck variant; the
// other variants are additive extensibility points, not a change to
// default semantics.
type Check interface {
	Command() []string
	Timeout() time.Duration
	Evaluate(res dockerhost.ExecResult) bool
}

// ExitCodeCheck passes iff the command exits zero. The zero value runs
// `echo healthy`, matching the spec's default health check.
type ExitCodeCheck struct {
	Cmd        []string
	CmdTimeout time.Duration
}

func (c ExitCodeCheck) Command() []string {
	if len(c.Cmd) == 0 {
		return []string{"echo", "healthy"}
	}
	return c.Cmd
}

func (c ExitCodeCheck) Timeout() time.Duration {
	if c.CmdTimeout <= 0 {
		return dockerhost.DefaultExecTimeout
	}
	return c.CmdTimeout
}

func (c ExitCodeCheck) Evaluate(res dockerhost.ExecResult) bool { return res.ExitCode == 0 }

// ToolKind names the known tool families a JSONCheck's output may come
// from. Evaluate does not read it: every kind is scored by the same
// PenaltyWeights rule.
type ToolKind string

const (
	ToolKindGeneric ToolKind = "generic"
	ToolKindPytest  ToolKind = "pytest"
	ToolKindJest    ToolKind = "jest"
)

// PenaltyWeights scores one numeric field of a JSON health-check payload
// against a threshold. It is the single scoring rule for every ToolKind;
// there is no per-tool weight type.
type PenaltyWeights struct {
	FailureFieldPath string  // dot-path into the JSON payload, e.g. "summary.failed"
	MaxAllowed       float64 // health check fails if the field's numeric value exceeds this
}

// JSONCheck runs a command and parses its stdout as JSON, applying a
// tool-specific penalty-weight rule to decide pass/fail.
type JSONCheck struct {
	Cmd        []string
	CmdTimeout time.Duration
	Kind       ToolKind
	Weights    PenaltyWeights
}

func (c JSONCheck) Command() []string       { return c.Cmd }
func (c JSONCheck) Timeout() time.Duration {
	if c.CmdTimeout <= 0 {
		return dockerhost.DefaultExecTimeout
	}
	return c.CmdTimeout
}

func (c JSONCheck) Evaluate(res dockerhost.ExecResult) bool {
	if res.ExitCode != 0 {
		return false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(res.Stdout), &payload); err != nil {
		return false
	}
	val, ok := lookupPath(payload, c.Weights.FailureFieldPath)
	if !ok {
		return true
	}
	n, ok := val.(float64)
	if !ok {
		return true
	}
	return n <= c.Weights.MaxAllowed
}

func lookupPath(m map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// RegexCheck passes iff the command's combined output matches Pattern.
type RegexCheck struct {
	Cmd        []string
	CmdTimeout time.Duration
	Pattern    *regexp.Regexp
}

func (c RegexCheck) Command() []string { return c.Cmd }
func (c RegexCheck) Timeout() time.Duration {
	if c.CmdTimeout <= 0 {
		return dockerhost.DefaultExecTimeout
	}
	return c.CmdTimeout
}

func (c RegexCheck) Evaluate(res dockerhost.ExecResult) bool {
	if c.Pattern == nil {
		return res.ExitCode == 0
	}
	return c.Pattern.MatchString(res.Stdout) || c.Pattern.MatchString(res.Stderr)
}

// LineCountCheck passes iff stdout has at least MinLines lines.
type LineCountCheck struct {
	Cmd        []string
	CmdTimeout time.Duration
	MinLines   int
}

func (c LineCountCheck) Command() []string { return c.Cmd }
func (c LineCountCheck) Timeout() time.Duration {
	if c.CmdTimeout <= 0 {
		return dockerhost.DefaultExecTimeout
	}
	return c.CmdTimeout
}

func (c LineCountCheck) Evaluate(res dockerhost.ExecResult) bool {
	if res.ExitCode != 0 {
		return false
	}
	lines := strings.Count(strings.TrimRight(res.Stdout, "\n"), "\n") + 1
	if strings.TrimSpace(res.Stdout) == "" {
		lines = 0
	}
	return lines >= c.MinLines
}
