//go:build linux

package platform

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

type stubConn struct {
	loadState string
	fragment  string
	stopErr   error
	stopJob   string
	calls     []string
}

func (c *stubConn) GetUnitPropertyContext(_ context.Context, unit, name string) (*dbus.Property, error) {
	switch name {
	case "LoadState":
		return &dbus.Property{Name: name, Value: godbus.MakeVariant(c.loadState)}, nil
	case "FragmentPath":
		return &dbus.Property{Name: name, Value: godbus.MakeVariant(c.fragment)}, nil
	}
	return nil, errors.New("unexpected property " + name)
}

func (c *stubConn) StopUnitContext(_ context.Context, name, mode string, ch chan<- string) (int, error) {
	c.calls = append(c.calls, "stop "+name)
	if c.stopErr != nil {
		return 0, c.stopErr
	}
	job := c.stopJob
	if job == "" {
		job = "done"
	}
	ch <- job
	return 1, nil
}

func (c *stubConn) DisableUnitFilesContext(_ context.Context, files []string, _ bool) ([]dbus.DisableUnitFileChange, error) {
	c.calls = append(c.calls, "disable "+files[0])
	return nil, nil
}

func (c *stubConn) ReloadContext(context.Context) error {
	c.calls = append(c.calls, "reload")
	return nil
}

func (c *stubConn) Close() {}

func services(c *stubConn) systemdServices {
	return systemdServices{connect: func(context.Context) (systemdConn, error) { return c, nil }}
}

func TestSystemd_StopAndDelete(t *testing.T) {
	unitFile := filepath.Join(t.TempDir(), "agent.service")
	require.NoError(t, os.WriteFile(unitFile, []byte("[Unit]\n"), 0o644))

	conn := &stubConn{loadState: "loaded", fragment: unitFile}
	s := services(conn)

	require.NoError(t, s.Stop(context.Background(), "agent"))
	require.NoError(t, s.Delete(context.Background(), "agent"))

	assert.Equal(t, []string{"stop agent.service", "disable agent.service", "reload"}, conn.calls)
	_, err := os.Stat(unitFile)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestSystemd_NotFound(t *testing.T) {
	s := services(&stubConn{loadState: "not-found"})

	assert.ErrorIs(t, s.Stop(context.Background(), "ghost"), types.ErrNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), "ghost.service"), types.ErrNotFound)
}

func TestSystemd_FailedJob(t *testing.T) {
	s := services(&stubConn{loadState: "loaded", stopJob: "failed"})
	assert.Error(t, s.Stop(context.Background(), "agent"))
}

func TestSystemd_UnreachableBusIsUnsupported(t *testing.T) {
	socket := &fs.PathError{Op: "dial", Path: "/run/systemd/private", Err: fs.ErrNotExist}
	s := systemdServices{connect: func(context.Context) (systemdConn, error) { return nil, socket }}

	for _, err := range []error{
		s.Stop(context.Background(), "agent"),
		s.Delete(context.Background(), "agent"),
	} {
		assert.ErrorIs(t, err, types.ErrUnsupported)
		assert.False(t, types.IsAbsent(err), "unreachable bus reported as absent: %v", err)
		assert.Contains(t, err.Error(), "/run/systemd/private")
	}
}

func TestSystemd_ConnectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := systemdServices{connect: func(ctx context.Context) (systemdConn, error) { return nil, ctx.Err() }}

	err := s.Stop(ctx, "agent")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrUnsupported)
}

func TestDBusError(t *testing.T) {
	denied := godbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}
	assert.ErrorIs(t, dbusError(denied), fs.ErrPermission)

	missing := godbus.Error{Name: "org.freedesktop.systemd1.NoSuchUnit"}
	assert.ErrorIs(t, dbusError(missing), types.ErrNotFound)

	plain := errors.New("bus closed")
	assert.Equal(t, plain, dbusError(plain))
}
