package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/pdfreplace"
	"github.com/tsawler/pdfreplace/internal/config"
	"github.com/tsawler/pdfreplace/internal/pdftest"
	"github.com/tsawler/pdfreplace/logging"
	"github.com/tsawler/pdfreplace/reader"
)

func newServer(t *testing.T, mutate func(*config.Config)) (*Server, *logging.BufferedLogHandler) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Validate(cfg))
	h := logging.NewBufferedLogHandler(nil)
	return New(cfg, slog.New(h), "test"), h
}

func invoice() []byte {
	return pdftest.Document(pdftest.Options{}, pdftest.Page("Invoice #123"))
}

func uploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process-pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

// firstPageContains checks the decoded content of page 1 of data.
func firstPageContains(t *testing.T, data []byte, want string) {
	t.Helper()
	r, err := reader.NewReader(data)
	require.NoError(t, err)
	page, err := r.GetPage(0)
	require.NoError(t, err)
	content, err := page.ContentData(0)
	require.NoError(t, err)
	assert.Contains(t, string(content), want)
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, nil)
	for _, target := range []string{"/health", "/api/process-pdf?health=1"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code, target)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"status": "healthy", "service": "PDF Text Replacer", "version": "test"}, body)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newServer(t, nil)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/nope", nil),
		httptest.NewRequest(http.MethodGet, "/api/process-pdf", nil),
		httptest.NewRequest(http.MethodGet, "/process-pdf", nil),
	} {
		rec := serve(s, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.URL.String())

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Not found", body["error"])
		assert.Contains(t, body["available_endpoints"], "GET /health")
	}
}

func TestPreflight(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodOptions, "/process-pdf", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "Content-Type,Replacements", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestUpload(t *testing.T) {
	s, logs := newServer(t, nil)
	req := uploadRequest(t, "invoice.pdf", invoice(), map[string]string{"replacements": `{"#123":"#456"}`})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=processed_invoice.pdf`, rec.Header().Get("Content-Disposition"))

	var report pdfreplace.Report
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get(ReportHeader)), &report))
	assert.Equal(t, 1, report.Replaced)
	assert.Empty(t, report.Skipped)

	firstPageContains(t, rec.Body.Bytes(), "(Invoice #456) Tj")
	assert.True(t, logs.Contains("document processed"))
	assert.True(t, logs.Contains("status=200"))
}

func TestUploadHeaderWinsOverForm(t *testing.T) {
	s, _ := newServer(t, nil)
	req := uploadRequest(t, "a.PDF", invoice(), map[string]string{"replacements": `{"#123":"#999"}`})
	req.Header.Set("Replacements", `{"Invoice":"Receipt"}`)
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	firstPageContains(t, rec.Body.Bytes(), "(Receipt #123) Tj")
}

func TestUploadWithoutMapping(t *testing.T) {
	s, _ := newServer(t, nil)
	data := invoice()
	rec := serve(s, uploadRequest(t, "x.pdf", data, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
	assert.JSONEq(t, `{"replaced":0,"skipped":[]}`, rec.Header().Get(ReportHeader))
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		mapping string
		status  int
		msg     string
	}{
		{
			name:   "no file",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "", nil, map[string]string{"x": "y"}) },
			status: http.StatusBadRequest,
			msg:    "No file uploaded",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/process-pdf", strings.NewReader("hello"))
			},
			status: http.StatusBadRequest,
			msg:    "No file uploaded",
		},
		{
			name:   "wrong extension",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "notes.txt", []byte("hi"), nil) },
			status: http.StatusBadRequest,
			msg:    "Only PDF files are allowed",
		},
		{
			name: "invalid replacements",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.pdf", invoice(), map[string]string{"replacements": "{nope"})
			},
			status: http.StatusBadRequest,
			msg:    "Invalid replacements JSON",
		},
		{
			name:    "malformed document",
			req:     func(t *testing.T) *http.Request { return uploadRequest(t, "a.pdf", []byte("not a pdf"), nil) },
			mapping: `{"a":"b"}`,
			status:  http.StatusUnprocessableEntity,
			msg:     "MalformedDocument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newServer(t, nil)
			req := tt.req(t)
			if tt.mapping != "" {
				req.Header.Set("Replacements", tt.mapping)
			}
			rec := serve(s, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.msg)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	s, _ := newServer(t, func(c *config.Config) { c.MaxUploadSize = "1KB" })
	rec := serve(s, uploadRequest(t, "big.pdf", bytes.Repeat([]byte("x"), 4096), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decodeError(t, rec), "upload limit")
}

func TestRawBody(t *testing.T) {
	s, _ := newServer(t, nil)
	target := "/api/process-pdf?replacements=" + url.QueryEscape(`{"Invoice":"Bill"}`)
	rec := serve(s, httptest.NewRequest(http.MethodPost, target, bytes.NewReader(invoice())))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=processed.pdf", rec.Header().Get("Content-Disposition"))
	firstPageContains(t, rec.Body.Bytes(), "(Bill #123) Tj")
}

func TestRawBodyErrors(t *testing.T) {
	s, _ := newServer(t, func(c *config.Config) { c.MaxUploadSize = "1KB" })

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/process-pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/api/process-pdf", bytes.NewReader(make([]byte, 2048))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/process-pdf", strings.NewReader("%PDF-1.4"))
	req.Header.Set("Replacements", `["not","an","object"]`)
	rec = serve(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHeaderASCII(t *testing.T) {
	s, _ := newServer(t, nil)
	content := "BT /F1 12 Tf (Caf) Tj /F2 12 Tf (\351) Tj ET"
	data := pdftest.Document(pdftest.Options{}, content)
	req := uploadRequest(t, "a.pdf", data, nil)
	req.Header.Set("Replacements", `{"Café":"Bar"}`)
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	h := rec.Header().Get(ReportHeader)
	for _, c := range []byte(h) {
		require.Less(t, c, byte(0x80), "header %q is not ASCII", h)
	}
	var report pdfreplace.Report
	require.NoError(t, json.Unmarshal([]byte(h), &report))
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "Café", report.Skipped[0].Key)
}

func TestHeaderJSON(t *testing.T) {
	got, err := headerJSON(map[string]string{"k": "é😀"})
	require.NoError(t, err)
	assert.Equal(t, `{"k":"\u00e9\ud83d\ude00"}`, got)

	var back map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &back))
	assert.Equal(t, "é😀", back["k"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&pdfreplace.Error{Kind: pdfreplace.MalformedDocument, Err: errors.New("bad")}, http.StatusUnprocessableEntity},
		{&pdfreplace.Error{Kind: pdfreplace.InvalidInput, Err: errors.New("bad")}, http.StatusBadRequest},
		{&pdfreplace.Error{Kind: pdfreplace.Canceled, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&pdfreplace.Error{Kind: pdfreplace.Canceled, Err: context.Canceled}, http.StatusServiceUnavailable},
		{tooLarge(10), http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
	}
}

func TestDownloadName(t *testing.T) {
	tests := map[string]string{
		"invoice.pdf":          "processed_invoice.pdf",
		"Report.PDF":           "processed_Report.pdf",
		`C:\docs\scan.pdf`:     "processed_scan.pdf",
		"../../etc/passwd.pdf": "processed_passwd.pdf",
		".pdf":                 "processed.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, downloadName(in), in)
	}
}

func TestServeShutdown(t *testing.T) {
	s, _ := newServer(t, func(c *config.Config) { c.MaxConnections = 2 })
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", ln.Addr()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
