package platform

import (
	"context"
	"io/fs"
	"os"

	"github.com/jamesainslie/reclaim/pkg/reclaim/probe"
)

// OSFilesystem is the Filesystem backed by the os package.
type OSFilesystem struct{}

func (OSFilesystem) Lstat(path string) (fs.FileInfo, error) { return os.Lstat(path) }

func (OSFilesystem) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }

func (OSFilesystem) SizeOf(ctx context.Context, path string) (uint64, bool) {
	r := probe.Size(ctx, path)
	return r.Bytes, r.Partial()
}

func (OSFilesystem) RemoveAll(path string) error { return os.RemoveAll(path) }
