package permission

import "testing"

func TestIsCommandAllowed_PrefixMatch(t *testing.T) {
	allowlist := []string{"npm install", "pytest"}

	cases := map[string]bool{
		"npm install lodash":         true,
		"npm test":                   false,
		"pytest tests/":              true,
		"npm install && rm -rf /":    false,
	}
	for cmd, want := range cases {
		if got := IsCommandAllowed(cmd, allowlist); got != want {
			t.Errorf("IsCommandAllowed(%q) = %v, want %v", cmd, got, want)
		}
	}
}

func TestIsCommandAllowed_ExactAndBasenameMatch(t *testing.T) {
	allowlist := []string{"ls"}

	if !IsCommandAllowed("ls", allowlist) {
		t.Error("expected exact match to be allowed")
	}
	if !IsCommandAllowed("ls -la", allowlist) {
		t.Error("expected basename-prefix match to be allowed")
	}
	if IsCommandAllowed("lsof", allowlist) {
		t.Error("expected lsof to not match ls via prefix (no whitespace boundary)")
	}
}

func TestIsCommandAllowed_RejectsForbiddenMetacharacters(t *testing.T) {
	allowlist := []string{"echo"}
	forbidden := []string{
		"echo hi && rm -rf /",
		"echo hi || true",
		"echo hi; rm -rf /",
		"echo hi | cat",
		"echo `whoami`",
		"echo $(whoami)",
		"echo ${HOME}",
		"echo hi\nrm -rf /",
	}
	for _, cmd := range forbidden {
		if IsCommandAllowed(cmd, allowlist) {
			t.Errorf("IsCommandAllowed(%q) = true, want false (forbidden metacharacter)", cmd)
		}
	}
}

func TestIsCommandAllowed_EmptyCommandRejected(t *testing.T) {
	if IsCommandAllowed("", []string{"ls"}) {
		t.Error("expected empty command to be rejected")
	}
	if IsCommandAllowed("   ", []string{"ls"}) {
		t.Error("expected whitespace-only command to be rejected")
	}
}

func TestIsCommandAllowed_GlobsAreLiteral(t *testing.T) {
	allowlist := []string{"npm *"}
	if IsCommandAllowed("npm install", allowlist) {
		t.Error("expected glob allowlist entry to never match via wildcard semantics")
	}
}

func TestContainsForbidden(t *testing.T) {
	if !ContainsForbidden("a && b") {
		t.Error("expected && to be detected")
	}
	if ContainsForbidden("npm install lodash") {
		t.Error("expected clean command to pass")
	}
}
