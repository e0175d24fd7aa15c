package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/xhad/docchat/pkg/document"
	"github.com/xhad/docchat/pkg/llm"
	"github.com/xhad/docchat/pkg/storage"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300" viewBox="0 0 400 300">` +
	`<rect width="400" height="300" fill="#e5e7eb"/>` +
	`<path d="M150 190l40-50 30 35 20-25 40 40z" fill="#9ca3af"/>` +
	`<circle cx="170" cy="120" r="15" fill="#9ca3af"/></svg>`

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write([]byte(placeholderSVG))
}

// handleParsePDF accepts a multipart form with a "file" PDF or a "url", and an
// optional "sample" flag.
func (s *Server) handleParsePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeError(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}

	if r.ContentLength > s.config.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := document.ParseRequest{
		URL:    strings.TrimSpace(r.FormValue("url")),
		Sample: formBool(r.FormValue("sample")),
	}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			if tooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Failed to read file")
			return
		}
		if !isPDF(header.Filename, header.Header.Get("Content-Type"), data) {
			writeError(w, http.StatusBadRequest, "File must be a PDF")
			return
		}
		req.Filename = header.Filename
		req.Data = data
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "Invalid file upload")
		return
	}

	if req.URL != "" && !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "URL must be http or https")
		return
	}

	doc, err := s.parser.Parse(r.Context(), req)
	if err != nil {
		if errors.Is(err, document.ErrNoInput) {
			writeError(w, http.StatusBadRequest, "No file provided")
			return
		}
		logRequestError(r, err, "Failed to parse document")
		writeError(w, http.StatusInternalServerError, "Failed to process document")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleChat streams one chat turn in the data-stream line format.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "Chat is not configured")
		return
	}

	var req llm.ChatRequest
	body := http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	events, err := s.chat.ChatStream(r.Context(), req)
	if err != nil {
		if errors.Is(err, llm.ErrNoMessages) {
			writeError(w, http.StatusBadRequest, "No messages provided")
			return
		}
		logRequestError(r, err, "Failed to start chat")
		writeError(w, http.StatusInternalServerError, "Failed to start chat")
		return
	}

	llm.SetStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	sw := llm.NewStreamWriter(w)
	broken := false
	for ev := range events {
		if broken {
			continue
		}
		if err := sw.WriteEvent(ev); err != nil {
			log.WithError(err).Debug("Client went away during chat stream")
			broken = true
		}
	}
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.assets == nil {
		http.NotFound(w, r)
		return
	}

	sessionID, filename, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, s.config.AssetPath), "/")
	if !ok || storage.ValidateKey(sessionID, filename) != nil {
		http.NotFound(w, r)
		return
	}

	data, mimeType, err := s.assets.Open(r.Context(), sessionID, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		logRequestError(r, err, "Failed to read asset")
		writeError(w, http.StatusInternalServerError, "Failed to read asset")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(data)
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// formBool accepts the values browsers and scripts send for a set flag,
// including a checkbox's default "on".
func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "on", "yes", "y":
		return true
	}
	return false
}

func isPDF(filename, contentType string, data []byte) bool {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return true
	}
	return contentType == "application/pdf" || strings.EqualFold(path.Ext(filename), ".pdf")
}
