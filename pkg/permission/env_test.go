package permission

import (
	"strings"
	"testing"
)

func TestSanitizeEnv_StripsDangerousKeys(t *testing.T) {
	in := map[string]string{
		"LD_PRELOAD": "/evil.so",
		"PATH":       "/usr/bin",
		"path":       "/also/dangerous",
		"MY_VAR":     "value",
	}
	out := SanitizeEnv(in)
	if _, ok := out["LD_PRELOAD"]; ok {
		t.Error("expected LD_PRELOAD to be stripped")
	}
	if _, ok := out["PATH"]; ok {
		t.Error("expected PATH to be stripped")
	}
	if _, ok := out["path"]; ok {
		t.Error("expected case-insensitive dangerous key match")
	}
	if out["MY_VAR"] != "value" {
		t.Error("expected safe key to survive")
	}
}

func TestSanitizeEnv_RejectsMalformedKeys(t *testing.T) {
	in := map[string]string{"1BAD": "x", "good_key": "y", "has-dash": "z"}
	out := SanitizeEnv(in)
	if _, ok := out["1BAD"]; ok {
		t.Error("expected key starting with digit to be rejected")
	}
	if _, ok := out["has-dash"]; ok {
		t.Error("expected key with dash to be rejected")
	}
	if out["good_key"] != "y" {
		t.Error("expected valid key to survive")
	}
}

func TestSanitizeEnv_TruncatesAndStripsNulls(t *testing.T) {
	long := strings.Repeat("a", 5000)
	in := map[string]string{"BIG": long, "NULLY": "a\x00b"}
	out := SanitizeEnv(in)
	if len(out["BIG"]) != maxEnvValueBytes {
		t.Errorf("len(BIG) = %d, want %d", len(out["BIG"]), maxEnvValueBytes)
	}
	if strings.Contains(out["NULLY"], "\x00") {
		t.Error("expected null bytes to be stripped")
	}
}
