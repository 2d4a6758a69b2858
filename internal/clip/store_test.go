package clip

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, requireMetadata bool) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), requireMetadata, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func audioFiles(t *testing.T, s *Store) []string {
	t.Helper()
	names, err := DirLister{}.ListEntries(s.Root())
	require.NoError(t, err)
	var out []string
	for _, n := range names {
		if !strings.HasPrefix(n, ".") {
			out = append(out, n)
		}
	}
	return out
}

func TestNewStoreCreatesMetadataDir(t *testing.T) {
	s := newTestStore(t, true)
	info, err := os.Stat(s.MetadataDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(s.Root()))
}

func TestCommitStoresAudioAndMetadata(t *testing.T) {
	s := newTestStore(t, true)

	id, m, err := s.Commit(strings.NewReader("OggS-audio"), ".ogg", payload("1.5", "3.0", "null", "null"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1.5, m.MarkerBeginning)

	data, err := os.ReadFile(filepath.Join(s.Root(), string(id)+".ogg"))
	require.NoError(t, err)
	assert.Equal(t, "OggS-audio", string(data))

	stored, err := s.Metadata(id)
	require.NoError(t, err)
	assert.Equal(t, m, stored)

	catalog, err := s.Catalog()
	require.NoError(t, err)
	assert.Contains(t, catalog, id)
}

func TestCommitLinksToEarlierClip(t *testing.T) {
	s := newTestStore(t, true)

	first, _, err := s.Commit(strings.NewReader("a"), ".ogg", payload("0", "1", "null", "null"))
	require.NoError(t, err)

	second, m, err := s.Commit(strings.NewReader("b"), ".ogg", payload("0", "1", string(first), "null"))
	require.NoError(t, err)
	require.NotNil(t, m.AudioClipBefore)
	assert.Equal(t, string(first)+".ogg", *m.AudioClipBefore)

	id, ok := m.Before()
	assert.True(t, ok)
	assert.Equal(t, first, id)
	assert.NotEqual(t, first, second)
}

func TestCommitRejectionRemovesAudio(t *testing.T) {
	tests := map[string]struct {
		fields map[string]string
		reason error
	}{
		"invalid marker": {payload("abc", "3.0", "null", "null"), ErrInvalidMarker},
		"unknown link":   {payload("1", "2", "ghost", "null"), ErrUnknownClipReference},
		"extra field": {
			map[string]string{
				FieldMarkerBeginning: "1", FieldMarkerEnd: "2",
				FieldAudioClipBefore: "null", FieldAudioClipAfter: "null",
				"extra": "1",
			},
			ErrUnexpectedFields,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, true)
			_, _, err := s.Commit(strings.NewReader("audio"), ".ogg", tt.fields)
			assert.ErrorIs(t, err, tt.reason)
			assert.Empty(t, audioFiles(t, s))

			o, err := s.FindOrphans()
			require.NoError(t, err)
			assert.Empty(t, o.Audio)
			assert.Empty(t, o.Metadata)
		})
	}
}

func TestCatalogRequiresMetadata(t *testing.T) {
	s := newTestStore(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "loose.ogg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), ".gitkeep"), nil, 0o644))

	catalog, err := s.Catalog()
	require.NoError(t, err)
	assert.Empty(t, catalog)

	require.NoError(t, s.WriteMetadata("loose", Metadata{MarkerEnd: 1}))
	catalog, err = s.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []ID{"loose"}, catalog.IDs())
}

func TestCatalogWithoutMetadataRequirement(t *testing.T) {
	s := newTestStore(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "loose.ogg"), []byte("x"), 0o644))

	catalog, err := s.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []ID{"loose"}, catalog.IDs())
}

func TestMetadataNotFound(t *testing.T) {
	s := newTestStore(t, true)
	for _, id := range []ID{"missing", "", ".lock", "../etc/passwd"} {
		_, err := s.Metadata(id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestOpenServesCatalogMembersOnly(t *testing.T) {
	s := newTestStore(t, true)
	id, _, err := s.Commit(bytes.NewReader([]byte("RIFF")), ".wav", payload("0", "1", "null", "null"))
	require.NoError(t, err)

	f, err := s.Open(id)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	_, err = s.Open("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordsSeparatesBadFiles(t *testing.T) {
	s := newTestStore(t, true)
	require.NoError(t, s.WriteMetadata("good", Metadata{MarkerEnd: 2}))
	require.NoError(t, os.WriteFile(filepath.Join(s.MetadataDir(), "bad.json"), []byte(`{"markerBeginning":1}`), 0o644))

	records, bad, err := s.Records()
	require.NoError(t, err)
	assert.Equal(t, map[ID]Metadata{"good": {MarkerEnd: 2}}, records)
	require.Contains(t, bad, ID("bad"))
}

func TestFindOrphans(t *testing.T) {
	s := newTestStore(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "noisy.ogg"), []byte("x"), 0o644))
	require.NoError(t, s.WriteMetadata("gone", Metadata{}))

	id, _, err := s.Commit(strings.NewReader("ok"), ".ogg", payload("0", "1", "null", "null"))
	require.NoError(t, err)

	o, err := s.FindOrphans()
	require.NoError(t, err)
	assert.Equal(t, []ID{"noisy"}, o.Audio)
	assert.Equal(t, []ID{"gone"}, o.Metadata)
	assert.NotContains(t, o.Audio, id)
}

func TestRemoveBlobMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t, true)
	assert.NoError(t, s.RemoveBlob(filepath.Join(s.Root(), "never.ogg")))
}
