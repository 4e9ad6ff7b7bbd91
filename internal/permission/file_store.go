package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// FileStore keeps client-local values in a JSON file, one string value per
// key, the way browser local storage does. The dismissal state is stored as
// a JSON string under StorageKey.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) read() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return v, nil
}

// Load implements Store. A missing file or key is the zero state.
func (f *FileStore) Load() (DismissalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var state DismissalState
	v, err := f.read()
	if err != nil {
		return state, err
	}
	raw := v.GetString(StorageKey)
	if raw == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return DismissalState{}, fmt.Errorf("corrupt %s entry: %w", StorageKey, err)
	}
	return state, nil
}

// Save implements Store.
func (f *FileStore) Save(state DismissalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.read()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	v.Set(StorageKey, string(raw))

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(f.path), err)
	}
	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}
