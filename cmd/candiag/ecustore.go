package main

import (
	"fmt"
	"os"

	"candiag/internal/ecuconfig"
)

// fileBackedStore wraps an ecuconfig.JSONFileStore and flushes to disk on
// every write, standing in for the embedded device's own Preferences
// namespace persisting itself across resets.
type fileBackedStore struct {
	*ecuconfig.JSONFileStore
	path string
}

func openECUConfigStore(path string) (*fileBackedStore, error) {
	jf, err := ecuconfig.NewJSONFileStore(path, os.ReadFile)
	if err != nil {
		return nil, fmt.Errorf("candiag: open ecu config store: %w", err)
	}
	return &fileBackedStore{JSONFileStore: jf, path: path}, nil
}

func (s *fileBackedStore) Put(key, value string) error {
	if err := s.JSONFileStore.Put(key, value); err != nil {
		return err
	}
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("candiag: marshal ecu config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("candiag: write ecu config: %w", err)
	}
	return nil
}
