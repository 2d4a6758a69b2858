package clip

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	MetadataDirName = ".meta"
	metadataExt     = ".json"
	lockFileName    = ".lock"
	uploadPattern   = ".upload-*"
)

// Store persists clip audio under a root directory and one metadata record
// per clip under root/.meta. Metadata writes are serialized with a file lock;
// audio and metadata are separate writes with no atomic commit across them.
type Store struct {
	root            string
	metaDir         string
	lister          Lister
	requireMetadata bool
	lock            *flock.Flock
	logger          *slog.Logger
}

// NewStore opens (and creates if needed) a clip store rooted at root. With
// requireMetadata set, only clips that have a metadata record are catalog
// members.
func NewStore(root string, requireMetadata bool, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve clip root %s: %w", root, err)
	}
	metaDir := filepath.Join(abs, MetadataDirName)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip store %s: %w", abs, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:            abs,
		metaDir:         metaDir,
		lister:          DirLister{},
		requireMetadata: requireMetadata,
		lock:            flock.New(filepath.Join(abs, lockFileName)),
		logger:          logger,
	}, nil
}

// Root returns the absolute clip root.
func (s *Store) Root() string { return s.root }

// MetadataDir returns the directory holding metadata records.
func (s *Store) MetadataDir() string { return s.metaDir }

// Catalog returns a fresh snapshot of the clips that can be referenced.
func (s *Store) Catalog() (Catalog, error) {
	catalog, err := ListClips(s.lister, s.root)
	if err != nil {
		return nil, err
	}
	if !s.requireMetadata {
		return catalog, nil
	}
	described, err := s.described()
	if err != nil {
		return nil, err
	}
	for id := range catalog {
		if !described[id] {
			delete(catalog, id)
		}
	}
	return catalog, nil
}

func (s *Store) described() (map[ID]bool, error) {
	names, err := s.lister.ListEntries(s.metaDir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrIOFailure, s.metaDir, err)
	}
	described := make(map[ID]bool, len(names))
	for _, name := range names {
		if filepath.Ext(name) != metadataExt {
			continue
		}
		if id := IDFromName(name); id != "" && !id.Hidden() {
			described[id] = true
		}
	}
	return described, nil
}

// SaveBlob writes audio bytes under a generated identifier. The file only
// becomes visible once fully written.
func (s *Store) SaveBlob(r io.Reader, ext string) (ID, string, error) {
	id := ID(uuid.NewString())
	dst := filepath.Join(s.root, string(id)+ext)

	tmp, err := os.CreateTemp(s.root, uploadPattern)
	if err != nil {
		return "", "", fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return id, dst, nil
}

// RemoveBlob deletes stored audio. A blob that is already gone is not an error.
func (s *Store) RemoveBlob(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", path, err)
	}
	return nil
}

// WriteMetadata persists the record for id, replacing any existing one.
func (s *Store) WriteMetadata(id ID, m Metadata) error {
	data, err := EncodeMetadata(m)
	if err != nil {
		return err
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock clip store: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(s.metaDir, "."+string(id)+"-*")
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.metadataPath(id)); err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

func (s *Store) metadataPath(id ID) string {
	return filepath.Join(s.metaDir, string(id)+metadataExt)
}

// Metadata reads the persisted record for id.
func (s *Store) Metadata(id ID) (Metadata, error) {
	if id == "" || id.Hidden() || strings.ContainsAny(string(id), `/\`) {
		return Metadata{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(s.metadataPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata %s: %w", id, err)
	}
	m, err := DecodeMetadata(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata %s: %w", id, err)
	}
	return m, nil
}

// Open returns the stored audio of a catalog member.
func (s *Store) Open(id ID) (*os.File, error) {
	catalog, err := s.Catalog()
	if err != nil {
		return nil, err
	}
	location, ok := catalog[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	f, err := os.Open(location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("open clip %s: %w", id, err)
	}
	return f, nil
}

// Commit stores an uploaded clip: the audio is written, the payload is
// validated against the catalog, and the metadata record is persisted. When
// validation or the metadata write fails the stored audio is removed again.
func (s *Store) Commit(audio io.Reader, ext string, fields map[string]string) (ID, Metadata, error) {
	id, blob, err := s.SaveBlob(audio, ext)
	if err != nil {
		return "", Metadata{}, err
	}

	discard := func(cause error) (ID, Metadata, error) {
		if err := s.RemoveBlob(blob); err != nil {
			s.logger.Warn("orphaned clip audio", "clip", id, "path", blob, "error", err)
		}
		return "", Metadata{}, cause
	}

	catalog, err := s.Catalog()
	if err != nil {
		return discard(err)
	}
	m, err := Validate(fields, catalog, s.root)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			s.logger.Info("clip rejected", "reason", rej.Code(), "field", rej.Field)
		}
		return discard(err)
	}
	if err := s.WriteMetadata(id, m); err != nil {
		return discard(err)
	}

	if m.Inverted() {
		s.logger.Warn("clip stored with inverted markers",
			"clip", id,
			"marker_beginning", m.MarkerBeginning,
			"marker_end", m.MarkerEnd)
	}
	s.logger.Info("clip stored", "clip", id, "path", blob)
	return id, m, nil
}

// Records reads every metadata record. Records that cannot be read or fail
// the schema are returned separately so one bad file does not hide the rest.
func (s *Store) Records() (map[ID]Metadata, map[ID]error, error) {
	described, err := s.described()
	if err != nil {
		return nil, nil, err
	}
	records := make(map[ID]Metadata, len(described))
	bad := make(map[ID]error)
	for id := range described {
		m, err := s.Metadata(id)
		if err != nil {
			bad[id] = err
			continue
		}
		records[id] = m
	}
	return records, bad, nil
}

// Orphans lists audio without metadata and metadata without audio. Both are
// left behind by a crash between the two writes or by out-of-band deletion.
type Orphans struct {
	Audio    []ID
	Metadata []ID
}

// FindOrphans compares the audio and metadata directories.
func (s *Store) FindOrphans() (Orphans, error) {
	blobs, err := ListClips(s.lister, s.root)
	if err != nil {
		return Orphans{}, err
	}
	described, err := s.described()
	if err != nil {
		return Orphans{}, err
	}

	var o Orphans
	for id := range blobs {
		if !described[id] {
			o.Audio = append(o.Audio, id)
		}
	}
	for id := range described {
		if _, ok := blobs[id]; !ok {
			o.Metadata = append(o.Metadata, id)
		}
	}
	sort.Slice(o.Audio, func(i, j int) bool { return o.Audio[i] < o.Audio[j] })
	sort.Slice(o.Metadata, func(i, j int) bool { return o.Metadata[i] < o.Metadata[j] })
	return o, nil
}
