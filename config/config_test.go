package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
[extension]
name = "widgets"
minimum_level = "servers"

[log]
level = "debug"
development = true

[runtime]
debug_asserts = true
virtual_failure = "terminate"
`
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Extension.Name != "widgets" {
		t.Errorf("name = %q, want widgets", c.Extension.Name)
	}
	if l, _ := c.Level(); l != abi.LevelServers {
		t.Errorf("level = %s, want servers", l)
	}
	if l, _ := c.LogLevel(); l != zapcore.DebugLevel {
		t.Errorf("log level = %s, want debug", l)
	}
	if !c.Log.Development || !c.Runtime.DebugAsserts {
		t.Errorf("development=%v debug_asserts=%v", c.Log.Development, c.Runtime.DebugAsserts)
	}
	if p, _ := c.Policy(); p != dispatch.PolicyTerminate {
		t.Errorf("policy = %s, want terminate", p)
	}
	if c.Path != path {
		t.Errorf("path = %q, want %q", c.Path, path)
	}
	if zc := c.ZapConfig(); !zc.Development || zc.Level.Level() != zapcore.DebugLevel {
		t.Errorf("zap config: development=%v level=%s", zc.Development, zc.Level.Level())
	}
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse("[log]\nlevel = \"warn\"\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Extension.Name != "extension" || c.Extension.MinimumLevel != "scene" {
		t.Errorf("extension defaults lost: %+v", c.Extension)
	}
	if c.Runtime.VirtualFailure != "default" || c.Runtime.DebugAsserts {
		t.Errorf("runtime defaults lost: %+v", c.Runtime)
	}
	if l, _ := c.LogLevel(); l != zapcore.WarnLevel {
		t.Errorf("log level = %s", l)
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"syntax", "[extension\nname = 1", errors.KindInvalidData},
		{"unknown key", "[extension]\nflavour = \"x\"", errors.KindInvalidInput},
		{"unknown section", "[server]\nport = 1", errors.KindInvalidInput},
		{"bad level", "[extension]\nminimum_level = \"boot\"", errors.KindInvalidInput},
		{"bad log level", "[log]\nlevel = \"loud\"", errors.KindInvalidInput},
		{"bad policy", "[runtime]\nvirtual_failure = \"retry\"", errors.KindInvalidInput},
		{"empty name", "[extension]\nname = \"\"", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.KindOf(err); got != tt.kind {
				t.Errorf("kind = %q, want %q (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[extension]\nname = \"found\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil || c.Extension.Name != "found" {
		t.Fatalf("config = %+v", c)
	}
}

func TestFindAndLoad_NotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c != nil {
		t.Logf("found a configuration above the temp dir: %s", c.Path)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	if errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("err = %v", err)
	}
}
