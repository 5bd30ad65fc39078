//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// systemdConn is the part of *dbus.Conn used here.
type systemdConn interface {
	GetUnitPropertyContext(ctx context.Context, unit, propertyName string) (*dbus.Property, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// systemdServices controls units through the systemd D-Bus API.
type systemdServices struct {
	connect func(ctx context.Context) (systemdConn, error)
}

func newServiceControl() ServiceControl {
	return systemdServices{connect: func(ctx context.Context) (systemdConn, error) {
		return dbus.NewWithContext(ctx)
	}}
}

// dial connects to the systemd manager. A host without a reachable systemd
// bus has no service control; the cause is kept as text so a missing socket
// is not mistaken for a missing unit.
func (s systemdServices) dial(ctx context.Context) (systemdConn, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connecting to systemd: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: connecting to systemd: %v", types.ErrUnsupported, err)
	}
	return conn, nil
}

func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

// Stop stops the unit and waits for the job to finish. A loaded but
// inactive unit is already stopped.
func (s systemdServices) Stop(ctx context.Context, name string) error {
	unit := unitName(name)
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := loadedFragment(ctx, conn, unit); err != nil {
		return err
	}

	done := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("stop %s: %w", unit, dbusError(err))
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("stop %s: job %s", unit, result)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", unit, ctx.Err())
	}
}

// Delete disables the unit, removes its unit file and reloads systemd.
func (s systemdServices) Delete(ctx context.Context, name string) error {
	unit := unitName(name)
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fragment, err := loadedFragment(ctx, conn, unit)
	if err != nil {
		return err
	}

	if _, err := conn.DisableUnitFilesContext(ctx, []string{unit}, false); err != nil {
		return fmt.Errorf("disable %s: %w", unit, dbusError(err))
	}
	if fragment != "" {
		if err := os.Remove(fragment); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove unit file %s: %w", fragment, err)
		}
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("reload after removing %s: %w", unit, dbusError(err))
	}
	return nil
}

// loadedFragment returns the unit file path, or types.ErrNotFound when
// systemd does not know the unit.
func loadedFragment(ctx context.Context, conn systemdConn, unit string) (string, error) {
	prop, err := conn.GetUnitPropertyContext(ctx, unit, "LoadState")
	if err != nil {
		return "", fmt.Errorf("query %s: %w", unit, dbusError(err))
	}
	if state, _ := prop.Value.Value().(string); state == "not-found" {
		return "", fmt.Errorf("unit %s: %w", unit, types.ErrNotFound)
	}

	prop, err = conn.GetUnitPropertyContext(ctx, unit, "FragmentPath")
	if err != nil {
		return "", nil
	}
	path, _ := prop.Value.Value().(string)
	return path, nil
}

// dbusError maps well-known D-Bus error names onto the engine's taxonomy.
func dbusError(err error) error {
	var derr godbus.Error
	if !errors.As(err, &derr) {
		return err
	}
	switch derr.Name {
	case "org.freedesktop.systemd1.NoSuchUnit":
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	case "org.freedesktop.DBus.Error.AccessDenied",
		"org.freedesktop.DBus.Error.InteractiveAuthorizationRequired":
		return fmt.Errorf("%w: %v", fs.ErrPermission, err)
	default:
		return err
	}
}
