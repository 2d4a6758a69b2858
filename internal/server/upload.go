package server

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/satindergrewal/clipchain/internal/clip"
)

// audioFileField is the multipart part carrying the clip audio.
const audioFileField = "audioFile"

// multipartMemory is how much of a multipart body is buffered before parts
// spill to temporary files.
const multipartMemory = 8 << 20

var uploadExtensions = map[string]string{
	"audio/ogg":   ".ogg",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mpeg":  ".mp3",
}

var audioContentTypes = map[string]string{
	".ogg": "audio/ogg",
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeReason(w, http.StatusRequestEntityTooLarge, "TooLarge")
			return
		}
		writeReason(w, http.StatusBadRequest, "MalformedUpload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(audioFileField)
	if err != nil {
		writeReason(w, http.StatusBadRequest, "MissingAudio")
		return
	}
	defer file.Close()

	if name, ok := repeatedField(r.MultipartForm); ok {
		s.writeErr(w, &clip.Rejection{Reason: clip.ErrUnexpectedFields, Field: name})
		return
	}

	mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type"))
	ext, ok := uploadExtensions[mediaType]
	if err != nil || !ok {
		writeReason(w, http.StatusUnsupportedMediaType, "UnsupportedMediaType")
		return
	}

	// Stray file parts count as fields so the validator rejects them as
	// unexpected.
	fields := make(map[string]string, len(r.MultipartForm.Value))
	for name, values := range r.MultipartForm.Value {
		fields[name] = values[0]
	}
	for name := range r.MultipartForm.File {
		if name != audioFileField {
			fields[name] = ""
		}
	}

	id, m, err := s.store.Commit(file, ext, fields)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if err := s.index.Put(r.Context(), id, m); err != nil {
		// The watcher indexes the clip again on its next pass.
		s.logger.Warn("index clip after upload", "clip", id, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       id,
		"metadata": m,
		"inverted": m.Inverted(),
	})
}

// repeatedField reports a part name sent more than once, including a name
// used for both a value and a file.
func repeatedField(form *multipart.Form) (string, bool) {
	var names []string
	for name, values := range form.Value {
		if len(values) > 1 || len(form.File[name]) > 0 {
			names = append(names, name)
		}
	}
	for name, files := range form.File {
		if len(files) > 1 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return names[0], true
}

func contentTypeFor(name string) string {
	if ct, ok := audioContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func clipID(r *http.Request) clip.ID {
	return clip.ID(r.PathValue("id"))
}
