//go:build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// stopPoll is how often Stop re-queries a service that is stopping.
const stopPoll = 200 * time.Millisecond

type windowsServices struct{}

func newServiceControl() ServiceControl { return windowsServices{} }

func openService(name string) (*mgr.Mgr, *mgr.Service, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to service manager: %w", err)
	}
	s, err := m.OpenService(name)
	if err != nil {
		_ = m.Disconnect()
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return nil, nil, fmt.Errorf("service %s: %w", name, types.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open service %s: %w", name, err)
	}
	return m, s, nil
}

// Stop sends a stop control and waits until the service reports stopped
// or ctx ends.
func (windowsServices) Stop(ctx context.Context, name string) error {
	m, s, err := openService(name)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	defer s.Close()

	status, err := s.Control(svc.Stop)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
			return nil
		}
		return fmt.Errorf("stop service %s: %w", name, err)
	}

	for status.State != svc.Stopped {
		select {
		case <-ctx.Done():
			return fmt.Errorf("stop service %s: %w", name, ctx.Err())
		case <-time.After(stopPoll):
		}
		status, err = s.Query()
		if err != nil {
			return fmt.Errorf("query service %s: %w", name, err)
		}
	}
	return nil
}

// Delete marks the service for deletion.
func (windowsServices) Delete(_ context.Context, name string) error {
	m, s, err := openService(name)
	if err != nil {
		return err
	}
	defer m.Disconnect()
	defer s.Close()

	if err := s.Delete(); err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_MARKED_FOR_DELETE) {
			return nil
		}
		return fmt.Errorf("delete service %s: %w", name, err)
	}
	return nil
}
