package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"medsum/internal/handler/http/respond"
	"medsum/internal/infra/ingest"
)

const (
	// multipartMemory is the part of a multipart body kept in memory;
	// the rest spills to temporary files.
	multipartMemory = 8 << 20

	fileField = "file"
)

// decode reads a JSON or multipart request. The returned encoding is set
// only when the text came from an uploaded file.
func decode(r *http.Request, maxFileBytes int64) (Request, ingest.Encoding, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return decodeJSON(r)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Request{}, "", respond.NewAppError(http.StatusUnsupportedMediaType, "unsupported content type", err)
	}

	switch mediaType {
	case "application/json":
		return decodeJSON(r)
	case "multipart/form-data":
		return decodeMultipart(r, maxFileBytes)
	default:
		return Request{}, "", respond.NewAppError(http.StatusUnsupportedMediaType,
			"unsupported content type: use application/json or multipart/form-data", nil)
	}
}

func decodeJSON(r *http.Request) (Request, ingest.Encoding, error) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return Request{}, "", bodyError(err, "invalid JSON body")
	}
	return req, "", nil
}

func decodeMultipart(r *http.Request, maxFileBytes int64) (Request, ingest.Encoding, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return Request{}, "", bodyError(err, "invalid multipart body")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req := Request{
		Text:       r.FormValue("text"),
		ModelID:    r.FormValue("model_id"),
		Device:     r.FormValue("device"),
		Credential: r.FormValue("credential"),
	}

	var err error
	if req.UseGPU, err = formBool(r, "use_gpu"); err != nil {
		return Request{}, "", err
	}
	if req.SecondPass, err = formBool(r, "second_pass"); err != nil {
		return Request{}, "", err
	}
	deid, err := formBool(r, "deidentify")
	if err != nil {
		return Request{}, "", err
	}
	req.Deidentify = deid != nil && *deid
	if req.MinLength, err = formInt(r, "min_length"); err != nil {
		return Request{}, "", err
	}
	if req.MaxLength, err = formInt(r, "max_length"); err != nil {
		return Request{}, "", err
	}

	file, header, err := r.FormFile(fileField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, "", nil
	}
	if err != nil {
		return Request{}, "", bodyError(err, "invalid file part")
	}
	defer func() { _ = file.Close() }()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".txt" {
		return Request{}, "", respond.NewAppError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q: only .txt files are accepted", ext), nil)
	}

	text, enc, err := ingest.Read(file, maxFileBytes)
	if errors.Is(err, ingest.ErrTooLarge) {
		return Request{}, "", respond.NewAppError(http.StatusRequestEntityTooLarge, "file too large", err)
	}
	if err != nil {
		return Request{}, "", bodyError(err, "invalid file part")
	}
	req.Text = text
	return req, enc, nil
}

// bodyError maps an exceeded body limit to 413 and anything else to 400.
func bodyError(err error, msg string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return respond.NewAppError(http.StatusRequestEntityTooLarge, "request body too large", err)
	}
	return respond.NewAppError(http.StatusBadRequest, msg, err)
}

func formBool(r *http.Request, key string) (*bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	switch strings.ToLower(v) {
	case "on", "yes":
		b := true
		return &b, nil
	case "off", "no":
		b := false
		return &b, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, respond.NewAppError(http.StatusBadRequest, key+" must be a boolean", err)
	}
	return &b, nil
}

func formInt(r *http.Request, key string) (*int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, respond.NewAppError(http.StatusBadRequest, key+" must be an integer", err)
	}
	return &n, nil
}
