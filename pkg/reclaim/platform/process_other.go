//go:build !unix && !windows

package platform

import (
	"context"
	"time"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

type noProcesses struct{}

func newProcessDirectory(CommandRunner) ProcessDirectory { return noProcesses{} }

func (noProcesses) List(context.Context) ([]Process, error) { return nil, types.ErrUnsupported }

func (noProcesses) Terminate(context.Context, int, bool) error { return types.ErrUnsupported }

func (noProcesses) Wait(context.Context, int, time.Duration) (bool, error) {
	return false, types.ErrUnsupported
}

func forceKillCommand(name string) (string, []string) {
	return "kill", []string{name}
}
