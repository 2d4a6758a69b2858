package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTripKeepsNulls(t *testing.T) {
	before := "a.ogg"
	m := Metadata{MarkerBeginning: 0.25, MarkerEnd: 2, AudioClipBefore: &before}

	data, err := EncodeMetadata(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"audioClipAfter": null`)

	got, err := DecodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeMetadataRejectsBadRecords(t *testing.T) {
	tests := map[string]string{
		"extra field":     `{"markerBeginning":0,"markerEnd":1,"audioClipBefore":null,"audioClipAfter":null,"x":1}`,
		"missing field":   `{"markerBeginning":0,"markerEnd":1,"audioClipBefore":null}`,
		"string marker":   `{"markerBeginning":"0","markerEnd":1,"audioClipBefore":null,"audioClipAfter":null}`,
		"numeric link":    `{"markerBeginning":0,"markerEnd":1,"audioClipBefore":3,"audioClipAfter":null}`,
		"empty link":      `{"markerBeginning":0,"markerEnd":1,"audioClipBefore":"","audioClipAfter":null}`,
		"not an object":   `[1,2,3]`,
		"not json at all": `markerBeginning=1`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMetadata([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestMetadataLinks(t *testing.T) {
	after := "nested/b.ogg"
	m := Metadata{AudioClipAfter: &after}

	_, ok := m.Before()
	assert.False(t, ok)

	id, ok := m.After()
	assert.True(t, ok)
	assert.Equal(t, ID("b"), id)

	assert.Equal(t, "-", LinkString(m.AudioClipBefore))
	assert.Equal(t, "nested/b.ogg", LinkString(m.AudioClipAfter))
}
