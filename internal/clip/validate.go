package clip

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
)

// nullLink is the literal an upload uses for "no linked clip".
const nullLink = "null"

var expectedFields = [...]string{
	FieldMarkerBeginning,
	FieldMarkerEnd,
	FieldAudioClipBefore,
	FieldAudioClipAfter,
}

// Validate turns an untrusted upload payload into Metadata. Links are resolved
// against catalog and stored relative to root. On failure the error is a
// *Rejection and nothing has been persisted.
func Validate(fields map[string]string, catalog Catalog, root string) (Metadata, error) {
	if err := checkFieldSet(fields); err != nil {
		return Metadata{}, err
	}

	begin, err := parseMarker(FieldMarkerBeginning, fields[FieldMarkerBeginning])
	if err != nil {
		return Metadata{}, err
	}
	end, err := parseMarker(FieldMarkerEnd, fields[FieldMarkerEnd])
	if err != nil {
		return Metadata{}, err
	}

	before, err := resolveLink(FieldAudioClipBefore, fields[FieldAudioClipBefore], catalog, root)
	if err != nil {
		return Metadata{}, err
	}
	after, err := resolveLink(FieldAudioClipAfter, fields[FieldAudioClipAfter], catalog, root)
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{
		MarkerBeginning: begin,
		MarkerEnd:       end,
		AudioClipBefore: before,
		AudioClipAfter:  after,
	}, nil
}

func checkFieldSet(fields map[string]string) error {
	for name := range fields {
		if !isExpectedField(name) {
			return reject(ErrUnexpectedFields, name, fields[name])
		}
	}
	for _, name := range expectedFields {
		if _, ok := fields[name]; !ok {
			return reject(ErrUnexpectedFields, name, "")
		}
	}
	return nil
}

func isExpectedField(name string) bool {
	for _, f := range expectedFields {
		if f == name {
			return true
		}
	}
	return false
}

func parseMarker(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, reject(ErrInvalidMarker, field, raw)
	}
	return v, nil
}

func resolveLink(field, raw string, catalog Catalog, root string) (*string, error) {
	if raw == nullLink {
		return nil, nil
	}
	location, ok := catalog[ID(raw)]
	if !ok {
		return nil, reject(ErrUnknownClipReference, field, raw)
	}
	rel, err := filepath.Rel(root, location)
	if err != nil {
		return nil, fmt.Errorf("relativize %s: %w", location, err)
	}
	rel = filepath.ToSlash(rel)
	return &rel, nil
}
