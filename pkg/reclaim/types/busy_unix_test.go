//go:build unix

package types

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestClassify_Busy(t *testing.T) {
	err := &fs.PathError{Op: "unlinkat", Path: "/mnt/x", Err: unix.EBUSY}
	assert.Equal(t, ClassTransientBusy, Classify(err))
	assert.Equal(t, ClassTransientBusy, Classify(&fs.PathError{Op: "unlinkat", Path: "/bin/x", Err: unix.ETXTBSY}))
}
