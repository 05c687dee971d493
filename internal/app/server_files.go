package app

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agentgate/internal/ingest"
)

const maxUploadBytes = 20 << 20

type processFileRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
}

type processFileResponse struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	PageCount  int    `json:"page_count,omitempty"`
	SheetCount int    `json:"sheet_count,omitempty"`
	TotalRows  int    `json:"total_rows,omitempty"`
	TextLength int    `json:"text_length"`
	Message    string `json:"message"`
}

// processFile accepts an upload, extracts text for the file type, and
// stores the record under the request's thread. The canonical body is JSON
// with base64 content; multipart forms are accepted as a convenience for
// browser clients.
func (s *Server) processFile(w http.ResponseWriter, r *http.Request) {
	var threadID, filename string
	var content []byte

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req processFileRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes*2)).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_json", "invalid request body", nil)
			return
		}
		threadID = strings.TrimSpace(req.ThreadID)
		filename = strings.TrimSpace(req.Filename)
		if filename == "" {
			writeErr(w, http.StatusBadRequest, "invalid_request", "filename is required", nil)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_base64", "content is not valid base64", nil)
			return
		}
		content = decoded
	} else {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_multipart", "invalid multipart form", nil)
			return
		}
		threadID = strings.TrimSpace(r.FormValue("thread_id"))
		file, header, err := r.FormFile("file")
		if err != nil {
			writeErr(w, http.StatusBadRequest, "missing_file", "missing file field", nil)
			return
		}
		defer file.Close()
		filename = header.Filename

		content, err = io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			writeErr(w, http.StatusBadRequest, "read_file_error", err.Error(), nil)
			return
		}
	}

	if threadID == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request", "thread_id is required", nil)
		return
	}
	if len(content) > maxUploadBytes {
		writeErr(w, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit", nil)
		return
	}

	record, err := ingest.Extract(filename, content)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedType) {
			writeErr(w, http.StatusBadRequest, "unsupported_file_type", err.Error(), nil)
			return
		}
		writeErr(w, http.StatusBadRequest, "extract_failed", err.Error(), nil)
		return
	}
	record.FileID = uuid.NewString()
	record.UploadedAt = nowISO()
	s.files.Put(threadID, record)

	s.log.Info().
		Str("thread_id", threadID).
		Str("file_id", record.FileID).
		Str("file_type", record.FileType).
		Msg("file processed")

	writeJSON(w, http.StatusOK, processFileResponse{
		FileID:     record.FileID,
		Filename:   record.Filename,
		FileType:   record.FileType,
		PageCount:  record.PageCount,
		SheetCount: record.SheetCount,
		TotalRows:  record.TotalRows,
		TextLength: len(record.Text),
		Message:    "File processed successfully.",
	})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	writeJSON(w, http.StatusOK, s.files.List(threadID))
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	fileID := chi.URLParam(r, "file_id")
	record, ok := s.files.Get(threadID, fileID)
	if !ok {
		writeErr(w, http.StatusNotFound, "not_found", "file not found", map[string]string{
			"thread_id": threadID,
			"file_id":   fileID,
		})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	fileID := chi.URLParam(r, "file_id")
	if !s.files.Delete(threadID, fileID) {
		writeErr(w, http.StatusNotFound, "not_found", "file not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
