package clip

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "events closed")
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for catalog event")
	}
	return Event{}
}

func TestWatcherReportsAddedAndRemoved(t *testing.T) {
	s := newTestStore(t, true)
	w, err := NewWatcher(s, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	id, _, err := s.Commit(strings.NewReader("a"), ".ogg", payload("0", "1", "null", "null"))
	require.NoError(t, err)

	added := nextEvent(t, w.Events())
	assert.Equal(t, Added, added.Op)
	assert.Equal(t, id, added.ID)

	require.NoError(t, os.Remove(filepath.Join(s.Root(), string(id)+".ogg")))
	require.NoError(t, os.Remove(filepath.Join(s.MetadataDir(), string(id)+".json")))

	removed := nextEvent(t, w.Events())
	assert.Equal(t, Removed, removed.Op)
	assert.Equal(t, id, removed.ID)

	cancel()
	require.NoError(t, <-done)
	for range w.Events() {
	}
}
