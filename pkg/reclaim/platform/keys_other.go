//go:build !windows

package platform

import (
	"fmt"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

// noKeyStore is used where the host has no registry. Every call reports
// types.ErrUnsupported; the deleter records such targets as absent.
type noKeyStore struct{}

func newKeyStore() KeyStore { return noKeyStore{} }

func (noKeyStore) Children(hive, key string) ([]string, error) {
	return nil, fmt.Errorf("registry %s\\%s: %w", hive, key, types.ErrUnsupported)
}

func (noKeyStore) DeleteKey(hive, key string) error {
	return fmt.Errorf("registry %s\\%s: %w", hive, key, types.ErrUnsupported)
}

func (noKeyStore) StringValue(hive, key, _ string) (string, error) {
	return "", fmt.Errorf("registry %s\\%s: %w", hive, key, types.ErrUnsupported)
}
