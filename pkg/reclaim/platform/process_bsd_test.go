//go:build unix && !linux

package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePS(t *testing.T) {
	out := "  1 /sbin/launchd\n 42 sleep\nbad line\n 77 /Applications/My App.app/Contents/MacOS/My App\n"
	procs := parsePS(out)

	assert.Len(t, procs, 3)
	assert.Equal(t, Process{PID: 1, Name: "launchd", Exe: "/sbin/launchd"}, procs[0])
	assert.Equal(t, "sleep", procs[1].Name)
	assert.Equal(t, "My App", procs[2].Name)
}
