package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".json"

// FileBackend stores one JSON file per key in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a FileBackend rooted at dir. The directory is created on the
// first write.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, fileName(key))
}

// fileName escapes key for use as a file name. A leading dot is escaped too, since
// dot files are skipped by List.
func fileName(key string) string {
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name + fileExt
}

func (b *FileBackend) Get(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading cache file for %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing cache file for %s: %w", key, err)
	}
	return &e, nil
}

// Put writes the entry to a temp file in the same directory and renames it over the
// target, so readers never observe a partial file.
func (b *FileBackend) Put(_ context.Context, entry Entry) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", entry.Key, err)
	}

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(entry.Key)); err != nil {
		return fmt.Errorf("renaming cache file for %s: %w", entry.Key, err)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("removing cache file for %s: %w", key, err)
	}
	return nil
}

func (b *FileBackend) List(_ context.Context) ([]Info, error) {
	dirEntries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	var infos []Info
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}

		info := Info{Key: key, Size: fi.Size(), ModifiedAt: fi.ModTime().UTC()}
		if data, err := os.ReadFile(filepath.Join(b.dir, name)); err == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				info.RecordCount = recordCount(e.Payload)
				if !e.WrittenAt.IsZero() {
					info.ModifiedAt = e.WrittenAt
				}
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}
