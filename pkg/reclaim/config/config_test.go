package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
)

func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tempDir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != DefaultMode {
		t.Errorf("Mode = %q, want %q", cfg.Mode, DefaultMode)
	}
	if cfg.Engine.GracefulTimeout != DefaultGracefulTimeout {
		t.Errorf("Engine.GracefulTimeout = %v, want %v", cfg.Engine.GracefulTimeout, DefaultGracefulTimeout)
	}
	if cfg.Engine.SettleDelay != DefaultSettleDelay {
		t.Errorf("Engine.SettleDelay = %v, want %v", cfg.Engine.SettleDelay, DefaultSettleDelay)
	}
	if cfg.Engine.Workers != DefaultWorkers {
		t.Errorf("Engine.Workers = %d, want %d", cfg.Engine.Workers, DefaultWorkers)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
	if cfg.History.RetentionDays != DefaultRetentionDays {
		t.Errorf("History.RetentionDays = %d, want %d", cfg.History.RetentionDays, DefaultRetentionDays)
	}
	if cfg.File != "" {
		t.Errorf("File = %q, want empty", cfg.File)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := isolate(t)
	configDir := filepath.Join(tempDir, ".config", "reclaim")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	content := `
mode: complete
targets: ~/targets.yaml
engine:
  graceful_timeout: 10s
  settle_delay: 0s
  workers: 2
history:
  enabled: false
  retention_days: 7
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Mode != "complete" {
		t.Errorf("Mode = %q, want complete", cfg.Mode)
	}
	if want := filepath.Join(tempDir, "targets.yaml"); cfg.Targets != want {
		t.Errorf("Targets = %q, want %q", cfg.Targets, want)
	}
	if cfg.Engine.GracefulTimeout != 10*time.Second {
		t.Errorf("Engine.GracefulTimeout = %v, want 10s", cfg.Engine.GracefulTimeout)
	}
	if cfg.Engine.SettleDelay != 0 {
		t.Errorf("Engine.SettleDelay = %v, want 0", cfg.Engine.SettleDelay)
	}
	if cfg.Engine.ForceTimeout != DefaultForceTimeout {
		t.Errorf("Engine.ForceTimeout = %v, want default", cfg.Engine.ForceTimeout)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	if !strings.HasSuffix(cfg.File, "config.yaml") {
		t.Errorf("File = %q, want the config file", cfg.File)
	}
}

func TestLoad_XDGConfigHome(t *testing.T) {
	tempDir := isolate(t)
	xdgDir := filepath.Join(tempDir, "xdg-config")
	if err := os.MkdirAll(filepath.Join(xdgDir, "reclaim"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(xdgDir, "reclaim", "config.yaml"), []byte("mode: complete\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", xdgDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "complete" {
		t.Errorf("Mode = %q, want complete", cfg.Mode)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("RECLAIM_MODE", "complete")
	t.Setenv("RECLAIM_ENGINE_WORKERS", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "complete" {
		t.Errorf("Mode = %q, want complete", cfg.Mode)
	}
	if cfg.Engine.Workers != 16 {
		t.Errorf("Engine.Workers = %d, want 16", cfg.Engine.Workers)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	isolate(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() with a missing explicit file should fail")
	}
}

func TestLoggingConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	lc, err := cfg.LoggingConfig()
	if err != nil {
		t.Fatalf("LoggingConfig() error = %v", err)
	}
	if lc.Rotation.MaxSize != 10*1024*1024 {
		t.Errorf("Rotation.MaxSize = %d, want 10MiB", lc.Rotation.MaxSize)
	}
	if lc.Path == "" {
		t.Error("Path should default to the state dir log")
	}

	cfg.Logging.Rotation.MaxSize = "lots"
	if _, err := cfg.LoggingConfig(); err == nil {
		t.Error("LoggingConfig() should reject an unparsable max_size")
	}
}

func TestTargetsPath(t *testing.T) {
	tempDir := isolate(t)
	cfg := &Config{}

	got, err := cfg.TargetsPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(tempDir, ".config", "reclaim", DefaultTargetsFile); got != want {
		t.Errorf("TargetsPath() = %q, want %q", got, want)
	}

	cfg.Targets = "/etc/reclaim/targets.yaml"
	if got, _ := cfg.TargetsPath(); got != cfg.Targets {
		t.Errorf("TargetsPath() = %q, want explicit path", got)
	}
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)
	tests := []struct {
		in, want string
	}{
		{"~/x", filepath.Join(home, "x")},
		{"/abs/path", "/abs/path"},
		{"rel", "rel"},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteDefault(t *testing.T) {
	tempDir := isolate(t)

	written, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("WriteDefault() wrote %v, want config and targets", written)
	}

	// The written config must load cleanly.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after WriteDefault error = %v", err)
	}
	if cfg.Mode != DefaultMode {
		t.Errorf("Mode = %q, want %q", cfg.Mode, DefaultMode)
	}

	def, err := LoadTargets(filepath.Join(tempDir, ".config", "reclaim", DefaultTargetsFile))
	if err != nil {
		t.Fatalf("LoadTargets(example) error = %v", err)
	}
	if len(def.Sets) != 2 || len(def.Stages) != 5 {
		t.Errorf("example targets has %d sets and %d stages", len(def.Sets), len(def.Stages))
	}

	again, err := WriteDefault()
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second WriteDefault() wrote %v, want nothing", again)
	}
}

func writeTargets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTargets(t *testing.T) {
	t.Setenv("RECLAIM_TEST_ROOT", "/srv/data")
	path := writeTargets(t, `
bases:
  Launcher:
    env: LAUNCHER_HOME
    fallbacks: ["${RECLAIM_TEST_ROOT}/launcher"]
sets:
  - name: tool
    base: Launcher
    processes: [tool.exe]
    services: [toolsvc]
    paths: [cache, $RECLAIM_TEST_ROOT/tool]
    registry:
      - hive: HKCU
        key: Software\Vendor\Tool
stages:
  - name: stop
    kind: terminate
  - name: wipe
    kind: delete
    sets: [tool]
  - name: temp
    kind: sweep
    dirs: [$RECLAIM_TEST_ROOT/tmp]
    keywords: [tool]
    complete_only: true
`)

	def, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets() error = %v", err)
	}

	base, ok := def.Bases["launcher"]
	if !ok {
		t.Fatalf("Bases = %v, want a launcher entry", def.Bases)
	}
	if base.Fallbacks[0] != "/srv/data/launcher" {
		t.Errorf("Fallbacks[0] = %q", base.Fallbacks[0])
	}

	set := def.Sets[0]
	if set.Base != "launcher" {
		t.Errorf("Base = %q, want launcher", set.Base)
	}
	if set.Paths[1] != "/srv/data/tool" {
		t.Errorf("Paths[1] = %q", set.Paths[1])
	}
	if set.Registry[0].Key != `Software\Vendor\Tool` {
		t.Errorf("Registry key = %q", set.Registry[0].Key)
	}

	if def.Stages[2].Kind != pipeline.KindSweep || !def.Stages[2].CompleteOnly {
		t.Errorf("Stages[2] = %+v", def.Stages[2])
	}
	if def.Stages[2].Dirs[0] != "/srv/data/tmp" {
		t.Errorf("Dirs[0] = %q", def.Stages[2].Dirs[0])
	}
}

func TestLoadTargets_UndefinedVariable(t *testing.T) {
	path := writeTargets(t, `
sets:
  - name: tool
    paths: ["${RECLAIM_SURELY_UNSET_B}/x", "${RECLAIM_SURELY_UNSET_A}/y", $RECLAIM_SURELY_UNSET_C/z]
stages:
  - name: wipe
    kind: delete
`)

	_, err := LoadTargets(path)
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("LoadTargets() error = %v, want ErrUndefinedVariable", err)
	}
	if !strings.Contains(err.Error(), "RECLAIM_SURELY_UNSET_A, RECLAIM_SURELY_UNSET_B") {
		t.Errorf("error %q should name both variables in order", err)
	}
	if strings.Contains(err.Error(), "RECLAIM_SURELY_UNSET_C") {
		t.Errorf("error %q names an unbraced variable, which is kept as written", err)
	}
}

func TestLoadTargets_LiteralDollar(t *testing.T) {
	t.Setenv("RECLAIM_TEST_ROOT", "/srv/data")
	path := writeTargets(t, `
sets:
  - name: tool
    paths:
      - '$RECLAIM_TEST_ROOT/cache'
      - '/srv/$$RECLAIM_TEST_ROOT/kept'
      - '/opt/tool/$Unset_Name'
stages:
  - name: recycle
    kind: purge
    dirs:
      - '/mnt/c/$Recycle.Bin'
      - 'C:\$Recycle.Bin'
      - 'C:\$WINDOWS.~BT'
`)

	def, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets() error = %v", err)
	}

	wantDirs := []string{`/mnt/c/$Recycle.Bin`, `C:\$Recycle.Bin`, `C:\$WINDOWS.~BT`}
	for i, want := range wantDirs {
		if got := def.Stages[0].Dirs[i]; got != want {
			t.Errorf("Dirs[%d] = %q, want %q", i, got, want)
		}
	}

	wantPaths := []string{"/srv/data/cache", "/srv/$RECLAIM_TEST_ROOT/kept", "/opt/tool/$Unset_Name"}
	for i, want := range wantPaths {
		if got := def.Sets[0].Paths[i]; got != want {
			t.Errorf("Paths[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestLoadTargets_Invalid(t *testing.T) {
	path := writeTargets(t, `
stages:
  - name: wipe
    kind: shred
`)
	_, err := LoadTargets(path)
	if !errors.Is(err, pipeline.ErrInvalidPlan) {
		t.Errorf("LoadTargets() error = %v, want ErrInvalidPlan", err)
	}
}

func TestDefaultHistoryPath(t *testing.T) {
	got := DefaultHistoryPath()
	if !strings.HasSuffix(got, filepath.Join("reclaim", "history")) {
		t.Errorf("DefaultHistoryPath() = %q", got)
	}
}
