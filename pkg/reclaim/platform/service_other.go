//go:build !linux && !windows

package platform

import (
	"context"
	"fmt"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

type noServices struct{}

func newServiceControl() ServiceControl { return noServices{} }

func (noServices) Stop(_ context.Context, name string) error {
	return fmt.Errorf("stop service %s: %w", name, types.ErrUnsupported)
}

func (noServices) Delete(_ context.Context, name string) error {
	return fmt.Errorf("delete service %s: %w", name, types.ErrUnsupported)
}
