package permission

import "testing"

func TestParseMode_CaseInsensitiveWithAskDefault(t *testing.T) {
	tests := map[string]Mode{
		"PLAN":      ModePlan,
		"Ask":       ModeAsk,
		"auto":      ModeAuto,
		"SOVEREIGN": ModeSovereign,
		"bogus":     ModeAsk,
		"":          ModeAsk,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCheck_PlanModeDeniesEverythingButRead(t *testing.T) {
	if r := Check(ModePlan, CategoryRead, "", nil); !r.Allowed || r.RequiresApproval {
		t.Errorf("read in plan mode = %+v, want allowed without approval", r)
	}
	for _, cat := range []Category{CategoryWrite, CategoryCommand, CategoryDeploy} {
		r := Check(ModePlan, cat, "ls", nil)
		if r.Allowed {
			t.Errorf("%s in plan mode = %+v, want denied", cat, r)
		}
		if r.Error == "" {
			t.Errorf("%s in plan mode: expected an error message", cat)
		}
	}
}

func TestCheck_SovereignModeAllowsEverythingWithoutApproval(t *testing.T) {
	for _, cat := range []Category{CategoryRead, CategoryWrite, CategoryCommand, CategoryDeploy} {
		r := Check(ModeSovereign, cat, "rm -rf /tmp/x", nil)
		if !r.Allowed || r.RequiresApproval {
			t.Errorf("%s in sovereign mode = %+v, want allowed without approval", cat, r)
		}
	}
}

func TestCheck_AskModeRequiresApproval(t *testing.T) {
	r := Check(ModeAsk, CategoryWrite, "", nil)
	if !r.Allowed || !r.RequiresApproval {
		t.Errorf("write in ask mode = %+v, want allowed+requires_approval", r)
	}

	r = Check(ModeAsk, CategoryCommand, "npm test", nil)
	if !r.Allowed || !r.RequiresApproval || !r.CanAddToAllowlist {
		t.Errorf("command in ask mode = %+v, want allowed+requires_approval+can_add_to_allowlist", r)
	}
}

func TestCheck_AutoModeCommandRespectsAllowlist(t *testing.T) {
	allowlist := []string{"npm install", "pytest"}

	r := Check(ModeAuto, CategoryCommand, "npm install lodash", allowlist)
	if !r.Allowed || r.RequiresApproval {
		t.Errorf("allowlisted command in auto mode = %+v, want allowed without approval", r)
	}

	r = Check(ModeAuto, CategoryCommand, "npm test", allowlist)
	if !r.Allowed || !r.RequiresApproval || !r.CanAddToAllowlist {
		t.Errorf("non-allowlisted command in auto mode = %+v, want requires_approval+can_add_to_allowlist", r)
	}
}

func TestCheck_AutoModeWriteAlwaysAllowed(t *testing.T) {
	r := Check(ModeAuto, CategoryWrite, "", nil)
	if !r.Allowed || r.RequiresApproval {
		t.Errorf("write in auto mode = %+v, want allowed without approval", r)
	}
}

func TestDefaultCategorizer(t *testing.T) {
	c := DefaultCategorizer()
	tests := map[string]Category{
		"read_file":   CategoryRead,
		"write_file":  CategoryWrite,
		"run_command": CategoryCommand,
		"create_pr":   CategoryWrite,
		"deploy_preview": CategoryDeploy,
	}
	for tool, want := range tests {
		got, ok := c.Category(tool)
		if !ok || got != want {
			t.Errorf("Category(%q) = %s, %v, want %s, true", tool, got, ok, want)
		}
	}
	if _, ok := c.Category("unknown_tool"); ok {
		t.Error("expected unknown tool to not be categorized")
	}
}
