package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tsawler/pdfreplace"
)

const serviceName = "PDF Text Replacer"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// httpError is a failure with its status code.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) *httpError {
	return &httpError{status: http.StatusBadRequest, msg: msg}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": s.version,
	})
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("health") == "1" {
		s.handleHealth(w, r)
		return
	}
	s.handleNotFound(w, r)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": "Not found",
		"available_endpoints": map[string]string{
			"GET /health":                   "Health check",
			"POST /process-pdf":             "Process an uploaded PDF (multipart field \"file\")",
			"POST /api/process-pdf":         "Process the PDF in the request body",
			"GET /api/process-pdf?health=1": "Health check",
		},
	})
}

// handleUpload processes a multipart upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.UploadLimit()
	if r.ContentLength > limit {
		s.fail(w, r, tooLarge(limit))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(s.cfg.MemoryLimit()); err != nil {
		if isTooLarge(err) {
			s.fail(w, r, tooLarge(limit))
			return
		}
		s.fail(w, r, badRequest("No file uploaded"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, badRequest("No file uploaded"))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		s.fail(w, r, badRequest("Only PDF files are allowed"))
		return
	}

	m, err := replacements(r.Header.Get("Replacements"), r.FormValue("replacements"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	s.process(w, r, data, m, downloadName(header.Filename))
}

// handleRaw processes a PDF sent as the request body.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.UploadLimit()
	if r.ContentLength > limit {
		s.fail(w, r, tooLarge(limit))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		if isTooLarge(err) {
			s.fail(w, r, tooLarge(limit))
			return
		}
		s.fail(w, r, badRequest("failed to read request body"))
		return
	}
	if len(data) == 0 {
		s.fail(w, r, badRequest("No file uploaded"))
		return
	}

	m, err := replacements(r.Header.Get("Replacements"), r.URL.Query().Get("replacements"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.process(w, r, data, m, "processed.pdf")
}

// process runs the replacement with the configured timeout and writes the
// document.
func (s *Server) process(w http.ResponseWriter, r *http.Request, data []byte, m pdfreplace.Replacement, name string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout())
	defer cancel()

	out, report, err := pdfreplace.Process(ctx, data, m,
		pdfreplace.WithLineBreakThreshold(s.cfg.LineBreakThreshold),
		pdfreplace.WithWorkers(s.cfg.Workers),
		pdfreplace.WithLogger(s.log))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("document processed",
		"path", r.URL.Path, "bytes", len(data), "replaced", report.Replaced, "skipped", len(report.Skipped))

	if h, err := headerJSON(report); err == nil {
		w.Header().Set(ReportHeader, h)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		s.log.Debug("failed to write response", "error", err)
	}
}

// fail writes err as a JSON error with the matching status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Info("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps an error to a status code and client message.
func statusFor(err error) (int, string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, he.msg
	}

	switch pdfreplace.KindOf(err) {
	case pdfreplace.MalformedDocument:
		return http.StatusUnprocessableEntity, err.Error()
	case pdfreplace.InvalidInput:
		return http.StatusBadRequest, err.Error()
	case pdfreplace.Canceled:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, "processing timed out"
		}
		return http.StatusServiceUnavailable, "request canceled"
	}
	return http.StatusInternalServerError, err.Error()
}

func tooLarge(limit int64) *httpError {
	return &httpError{
		status: http.StatusRequestEntityTooLarge,
		msg:    fmt.Sprintf("file exceeds the upload limit of %d bytes", limit),
	}
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// replacements decodes the first non-empty source as a JSON object.
func replacements(sources ...string) (pdfreplace.Replacement, error) {
	for _, src := range sources {
		if strings.TrimSpace(src) == "" {
			continue
		}
		var m pdfreplace.Replacement
		if err := json.Unmarshal([]byte(src), &m); err != nil {
			return nil, badRequest("Invalid replacements JSON: " + err.Error())
		}
		return m, nil
	}
	return pdfreplace.Replacement{}, nil
}

// downloadName derives the attachment name from the uploaded file name.
func downloadName(upload string) string {
	base := filepath.Base(strings.ReplaceAll(upload, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		return "processed.pdf"
	}
	return "processed_" + stem + ".pdf"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// headerJSON encodes v as JSON restricted to ASCII, for use as a header
// value.
func headerJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if !hasNonASCII(b) {
		return string(b), nil
	}
	var sb strings.Builder
	for _, r := range string(b) {
		switch {
		case r < utf8.RuneSelf:
			sb.WriteRune(r)
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&sb, `\u%04x`, r)
		}
	}
	return sb.String(), nil
}

func hasNonASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
