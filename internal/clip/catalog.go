// Package clip holds the clip catalog, the upload validator and the
// filesystem store for clip audio and metadata.
package clip

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ID names a persisted clip: its filename without the extension.
type ID string

// Hidden reports whether the identifier is reserved and kept out of the catalog.
func (id ID) Hidden() bool { return strings.HasPrefix(string(id), ".") }

// Catalog maps clip identifiers to their storage location. It is a
// point-in-time snapshot.
type Catalog map[ID]string

// IDs returns the catalog identifiers in sorted order.
func (c Catalog) IDs() []ID {
	ids := make([]ID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lister enumerates the file names in a directory.
type Lister interface {
	ListEntries(dir string) ([]string, error)
}

// DirLister lists regular entries of a local directory.
type DirLister struct{}

func (DirLister) ListEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// IDFromName strips the extension from a file name. A name whose only dot is
// the leading one (".gitkeep") has no extension and stays hidden.
func IDFromName(name string) ID {
	ext := filepath.Ext(name)
	if ext == name {
		return ID(name)
	}
	return ID(strings.TrimSuffix(name, ext))
}

// ListClips scans dir and builds a catalog from the entries lister reports.
// Hidden entries are skipped. A failed scan is reported as ErrIOFailure and
// never replaced by a partial result.
func ListClips(lister Lister, dir string) (Catalog, error) {
	names, err := lister.ListEntries(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrIOFailure, dir, err)
	}
	catalog := make(Catalog, len(names))
	for _, name := range names {
		id := IDFromName(name)
		if id == "" || id.Hidden() {
			continue
		}
		catalog[id] = filepath.Join(dir, name)
	}
	return catalog, nil
}
