package streambus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const advertSuffix = ".adv"

// Directory is the shared folder where outlets advertise their streams.
type Directory struct {
	path string
}

// NewDirectory returns a Directory rooted at path. The folder is created
// on first advertisement.
func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

// Path returns the directory location.
func (d *Directory) Path() string {
	return d.path
}

// List returns every readable advertisement, ordered by file name.
// Unreadable or malformed entries are skipped.
func (d *Directory) List() ([]Info, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), advertSuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(d.path, name))
		if err != nil {
			continue
		}
		var info Info
		if err := unmarshal(data, &info); err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *Directory) advertise(info Info) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create stream directory: %w", err)
	}
	data, err := marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode advertisement: %w", err)
	}
	tmp, err := os.CreateTemp(d.path, "advert-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create advertisement: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write advertisement: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close advertisement: %w", err)
	}
	if err := os.Rename(tmpPath, d.advertPath(info.SourceID)); err != nil {
		return fmt.Errorf("failed to publish advertisement: %w", err)
	}
	return nil
}

func (d *Directory) remove(sourceID string) error {
	if err := os.Remove(d.advertPath(sourceID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *Directory) advertPath(sourceID string) string {
	return filepath.Join(d.path, sourceID+advertSuffix)
}
