//go:build !unix && !windows

package types

func isBusy(error) bool { return false }
