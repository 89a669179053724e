package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tieubaoca/memory-be/types"
)

// ExcludedFoldersRepo manages the Drive folders excluded from search. The
// set is small and user-edited, so it lives in a JSON file instead of a
// database; every mutation rewrites the file.
type ExcludedFoldersRepo struct {
	path string

	mu      sync.RWMutex
	folders []types.ExcludedFolder
}

type excludedFoldersFile struct {
	ExcludedFolders []types.ExcludedFolder `json:"excluded_folders"`
}

func NewExcludedFoldersRepo(path string) (*ExcludedFoldersRepo, error) {
	r := &ExcludedFoldersRepo{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the file, dropping in-memory state. A missing file is an
// empty set, not an error.
func (r *ExcludedFoldersRepo) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.folders = nil
		return nil
	}
	if err != nil {
		return err
	}
	var file excludedFoldersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", r.path, err)
	}
	r.folders = file.ExcludedFolders
	return nil
}

// List returns a copy of every configured folder, enabled or not.
func (r *ExcludedFoldersRepo) List() []types.ExcludedFolder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.ExcludedFolder(nil), r.folders...)
}

// EnabledIDs returns the folder IDs currently active as exclusions.
func (r *ExcludedFoldersRepo) EnabledIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, f := range r.folders {
		if f.Enabled {
			ids = append(ids, f.FolderID)
		}
	}
	return ids
}

// Add registers a folder as excluded. Adding an existing folder updates its
// name and description and re-enables it.
func (r *ExcludedFoldersRepo) Add(folderID, name, description string) error {
	if folderID == "" {
		return fmt.Errorf("folder_id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, f := range r.folders {
		if f.FolderID == folderID {
			r.folders[i].Name = name
			r.folders[i].Description = description
			r.folders[i].Enabled = true
			return r.persist()
		}
	}
	r.folders = append(r.folders, types.ExcludedFolder{
		FolderID:    folderID,
		Name:        name,
		Description: description,
		Enabled:     true,
		AddedAt:     time.Now().Unix(),
	})
	return r.persist()
}

func (r *ExcludedFoldersRepo) Remove(folderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, f := range r.folders {
		if f.FolderID == folderID {
			r.folders = append(r.folders[:i], r.folders[i+1:]...)
			return r.persist()
		}
	}
	return fmt.Errorf("folder %s not excluded", folderID)
}

// SetEnabled toggles one exclusion without forgetting it.
func (r *ExcludedFoldersRepo) SetEnabled(folderID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, f := range r.folders {
		if f.FolderID == folderID {
			r.folders[i].Enabled = enabled
			return r.persist()
		}
	}
	return fmt.Errorf("folder %s not excluded", folderID)
}

// persist writes the set atomically. Callers must hold the write lock.
func (r *ExcludedFoldersRepo) persist() error {
	data, err := json.MarshalIndent(excludedFoldersFile{ExcludedFolders: r.folders}, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
