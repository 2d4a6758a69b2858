package clip

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Field names of an upload payload and of the persisted record.
const (
	FieldMarkerBeginning = "markerBeginning"
	FieldMarkerEnd       = "markerEnd"
	FieldAudioClipBefore = "audioClipBefore"
	FieldAudioClipAfter  = "audioClipAfter"
)

// Metadata is the validated, persisted record of one clip. Links hold paths
// relative to the clip root; nil means no link.
type Metadata struct {
	MarkerBeginning float64 `json:"markerBeginning"`
	MarkerEnd       float64 `json:"markerEnd"`
	AudioClipBefore *string `json:"audioClipBefore"`
	AudioClipAfter  *string `json:"audioClipAfter"`
}

// Inverted reports whether the end marker precedes the beginning marker.
// Such ranges are stored as given and only flagged.
func (m Metadata) Inverted() bool {
	return m.MarkerEnd < m.MarkerBeginning
}

// Before returns the identifier of the predecessor clip, if any.
func (m Metadata) Before() (ID, bool) { return linkID(m.AudioClipBefore) }

// After returns the identifier of the successor clip, if any.
func (m Metadata) After() (ID, bool) { return linkID(m.AudioClipAfter) }

func linkID(link *string) (ID, bool) {
	if link == nil {
		return "", false
	}
	return IDFromName(path.Base(*link)), true
}

const metadataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["markerBeginning", "markerEnd", "audioClipBefore", "audioClipAfter"],
  "properties": {
    "markerBeginning": {"type": "number"},
    "markerEnd": {"type": "number"},
    "audioClipBefore": {"type": ["string", "null"], "minLength": 1},
    "audioClipAfter": {"type": ["string", "null"], "minLength": 1}
  }
}`

var schema = jsonschema.MustCompileString("clip-metadata.schema.json", metadataSchema)

// DecodeMetadata parses a persisted record and checks it against the
// metadata schema: exactly the four fields, markers numeric, links string or
// null.
func DecodeMetadata(data []byte) (Metadata, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Metadata{}, fmt.Errorf("metadata schema: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// EncodeMetadata serializes m as the flat four-field record.
func EncodeMetadata(m Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return append(data, '\n'), nil
}

// LinkString renders a link for display, "-" when there is none.
func LinkString(link *string) string {
	if link == nil {
		return "-"
	}
	return *link
}
