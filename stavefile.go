//go:build stave

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
)

// Default target when running `stave` with no arguments.
var Default = Build

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"l": Lint,
	"x": Cross,
	"c": Clean,
}

const (
	binaryName = "reclaim"
	mainPkg    = "./cmd/reclaim"
	binDir     = "bin"
)

// crossTargets are the platforms with their own process, service and
// registry implementations.
var crossTargets = []struct{ goos, goarch string }{
	{"windows", "amd64"},
	{"windows", "arm64"},
	{"linux", "amd64"},
	{"darwin", "arm64"},
}

// All runs lint and tests, then builds.
func All() error {
	st.Deps(Lint, Test)
	st.Deps(Build)
	return nil
}

// Build compiles reclaim for the host platform.
func Build() error {
	return build(runtime.GOOS, runtime.GOARCH, filepath.Join(binDir, exeName(runtime.GOOS)))
}

// Cross compiles reclaim for every supported platform into bin/<os>-<arch>/.
func Cross() error {
	for _, t := range crossTargets {
		out := filepath.Join(binDir, t.goos+"-"+t.goarch, exeName(t.goos))
		if err := build(t.goos, t.goarch, out); err != nil {
			return fmt.Errorf("building %s/%s: %w", t.goos, t.goarch, err)
		}
	}
	return nil
}

func build(goos, goarch, output string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	env := map[string]string{"GOOS": goos, "GOARCH": goarch, "CGO_ENABLED": "0"}
	if st.Verbose() {
		fmt.Printf("Building %s (%s/%s)\n", output, goos, goarch)
	}
	return sh.RunWithV(env, "go", "build", "-trimpath", "-ldflags", buildLdflags(), "-o", output, mainPkg)
}

func exeName(goos string) string {
	if goos == "windows" {
		return binaryName + ".exe"
	}
	return binaryName
}

// Install installs reclaim into GOBIN with go install.
func Install() error {
	return sh.RunV("go", "install", "-ldflags", buildLdflags(), mainPkg)
}

// Test runs all tests with race detection and coverage.
func Test() error {
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// Vet type-checks the platform files of every cross target.
func Vet() error {
	for _, t := range crossTargets {
		env := map[string]string{"GOOS": t.goos, "GOARCH": t.goarch}
		if err := sh.RunWithV(env, "go", "vet", "./..."); err != nil {
			return fmt.Errorf("vet %s/%s: %w", t.goos, t.goarch, err)
		}
	}
	return nil
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if st.Verbose() {
		fmt.Printf("Removing %s/\n", binDir)
	}
	return sh.Rm(binDir + "/")
}

// Fmt formats all Go code.
func Fmt() error {
	if err := sh.Run("gofmt", "-w", "."); err != nil {
		return fmt.Errorf("running gofmt: %w", err)
	}
	return sh.Run("goimports", "-w", ".")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// buildLdflags returns ldflags for version injection.
func buildLdflags() string {
	version := "dev"
	commit := "unknown"
	date := time.Now().UTC().Format(time.RFC3339)

	if v, err := sh.Output("git", "describe", "--tags", "--always"); err == nil && v != "" {
		version = strings.TrimSpace(v)
	}
	if c, err := sh.Output("git", "rev-parse", "--short", "HEAD"); err == nil && c != "" {
		commit = strings.TrimSpace(c)
	}

	return fmt.Sprintf("-s -w -X main.version=%s -X main.commit=%s -X main.date=%s", version, commit, date)
}
