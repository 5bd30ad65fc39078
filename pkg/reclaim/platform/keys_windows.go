//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

var hiveRoots = map[types.Hive]registry.Key{
	types.HiveCurrentUser:   registry.CURRENT_USER,
	types.HiveLocalMachine:  registry.LOCAL_MACHINE,
	types.HiveClassesRoot:   registry.CLASSES_ROOT,
	types.HiveUsers:         registry.USERS,
	types.HiveCurrentConfig: registry.CURRENT_CONFIG,
}

// registryStore is the KeyStore backed by the Windows registry.
type registryStore struct{}

func newKeyStore() KeyStore { return registryStore{} }

func root(hive string) (registry.Key, error) {
	h, err := types.ParseHive(hive)
	if err != nil {
		return 0, err
	}
	return hiveRoots[h], nil
}

func registryError(op, hive, key string, err error) error {
	if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND) {
		return fmt.Errorf("%s %s\\%s: %w", op, hive, key, types.ErrNotFound)
	}
	return fmt.Errorf("%s %s\\%s: %w", op, hive, key, err)
}

func (registryStore) Children(hive, key string) ([]string, error) {
	r, err := root(hive)
	if err != nil {
		return nil, err
	}
	k, err := registry.OpenKey(r, key, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, registryError("open", hive, key, err)
	}
	defer k.Close()

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, registryError("enumerate", hive, key, err)
	}
	return names, nil
}

func (registryStore) DeleteKey(hive, key string) error {
	r, err := root(hive)
	if err != nil {
		return err
	}
	if err := registry.DeleteKey(r, key); err != nil {
		return registryError("delete", hive, key, err)
	}
	return nil
}

func (registryStore) StringValue(hive, key, name string) (string, error) {
	r, err := root(hive)
	if err != nil {
		return "", err
	}
	k, err := registry.OpenKey(r, key, registry.QUERY_VALUE)
	if err != nil {
		return "", registryError("open", hive, key, err)
	}
	defer k.Close()

	v, _, err := k.GetStringValue(name)
	if err != nil {
		return "", registryError("read "+name+" on", hive, key, err)
	}
	return v, nil
}
