package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

// fakeEngine は変換エンジンのHTTP面だけを模倣します。
type fakeEngine struct {
	jobID      string
	lastFields map[string]string
	lastFile   string
	status     map[string]any
	result     string
	resultCode int
}

func (f *fakeEngine) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastFields = map[string]string{}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				f.lastFields[key] = values[0]
			}
		}
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			f.lastFile = files[0].Filename
		}
		json.NewEncoder(w).Encode(map[string]any{"job_id": f.jobID, "status": "pending"})
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.status)
	})
	mux.HandleFunc("/logs/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"logs": []string{"[12:00:00] [INFO] hola"}, "last_n": r.URL.Query().Get("last_n")})
	})
	mux.HandleFunc("/result/", func(w http.ResponseWriter, r *http.Request) {
		if f.resultCode != 0 && f.resultCode != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.resultCode)
			json.NewEncoder(w).Encode(map[string]any{"code": "JOB_NOT_COMPLETED"})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, f.result)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProxy(t *testing.T, engineURL string, opts Options) (*gin.Engine, *Handler, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploadDir := t.TempDir()
	handler, err := NewHandler(engineURL, uploadDir, opts, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewHandler returned error: %v", err)
	}

	router := gin.New()
	router.POST("/convert", handler.Convert)
	router.GET("/status/:job_id", handler.Status)
	router.GET("/logs/:job_id", handler.Logs)
	router.GET("/result/:job_id", handler.Result)
	return router, handler, uploadDir
}

func convertRequest(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("pdf", "escaneo.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile returned error: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4\n%%EOF\n")); err != nil {
		t.Fatalf("part.Write returned error: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField returned error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close returned error: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestConvertForwardsToEngine(t *testing.T) {
	engine := &fakeEngine{jobID: "job-42"}
	server := engine.serve(t)
	router, handler, uploadDir := newTestProxy(t, server.URL, Options{})

	body, contentType := convertRequest(t, map[string]string{
		"dpi":            "150",
		"conf_threshold": "70",
		"lang":           "eng",
		"process_areas":  "true",
		"area_left":      "10",
		"area_top":       "20",
		"area_right":     "300",
		"area_bottom":    "400",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if payload["job_id"] != "job-42" {
		t.Errorf("expected job_id job-42, got %v", payload["job_id"])
	}

	if engine.lastFields["dpi"] != "150" || engine.lastFields["lang"] != "eng" {
		t.Errorf("parameters were not forwarded: %v", engine.lastFields)
	}
	if engine.lastFields["area"] != "[10,20,300,400]" {
		t.Errorf("expected area [10,20,300,400], got %q", engine.lastFields["area"])
	}

	// UUIDにリネームされて保存されている
	storedName, _ := payload["pdf_filename"].(string)
	if storedName == "" || storedName == "escaneo.pdf" {
		t.Errorf("expected a renamed upload, got %q", storedName)
	}
	if _, err := os.Stat(filepath.Join(uploadDir, storedName)); err != nil {
		t.Errorf("upload was not saved: %v", err)
	}

	jobs := handler.ActiveJobs()
	if job, ok := jobs["job-42"]; !ok || job.Status != "pending" {
		t.Errorf("job was not tracked: %v", jobs)
	}
}

func TestConvertPreservesFilename(t *testing.T) {
	engine := &fakeEngine{jobID: "job-1"}
	server := engine.serve(t)
	router, _, uploadDir := newTestProxy(t, server.URL, Options{PreserveFilename: true})

	body, contentType := convertRequest(t, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(uploadDir, "escaneo.pdf")); err != nil {
		t.Errorf("original filename was not preserved: %v", err)
	}
}

func TestConvertOmitsAreaWhenDisabled(t *testing.T) {
	engine := &fakeEngine{jobID: "job-1"}
	server := engine.serve(t)
	router, _, _ := newTestProxy(t, server.URL, Options{})

	body, contentType := convertRequest(t, map[string]string{
		"area_left":   "10",
		"area_right":  "300",
		"area_bottom": "400",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := engine.lastFields["area"]; ok {
		t.Errorf("area must not be sent when process_areas is off: %v", engine.lastFields)
	}
}

func TestConvertEngineDown(t *testing.T) {
	router, _, _ := newTestProxy(t, "http://127.0.0.1:1", Options{})

	body, contentType := convertRequest(t, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestStatusUpdatesTracking(t *testing.T) {
	engine := &fakeEngine{jobID: "job-1", status: map[string]any{"job_id": "job-1", "status": "completed"}}
	server := engine.serve(t)
	router, handler, _ := newTestProxy(t, server.URL, Options{})

	// 追跡対象として登録しておく
	body, contentType := convertRequest(t, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("convert failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/status/job-1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	jobs := handler.ActiveJobs()
	if job, ok := jobs["job-1"]; !ok || job.Status != "completed" {
		t.Errorf("tracking table was not refreshed: %v", jobs)
	}
}

func TestResultSavesMarkdown(t *testing.T) {
	markdown := "## Página 1\n\nHola Mundo\n\n\n---\n\n"
	engine := &fakeEngine{jobID: "job-1", result: markdown}
	server := engine.serve(t)
	router, _, uploadDir := newTestProxy(t, server.URL, Options{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/result/job-1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != markdown {
		t.Errorf("body does not match markdown: %q", w.Body.String())
	}

	saved, err := os.ReadFile(filepath.Join(uploadDir, "job-1.md"))
	if err != nil {
		t.Fatalf("markdown was not saved: %v", err)
	}
	if string(saved) != markdown {
		t.Errorf("saved markdown does not match: %q", string(saved))
	}
}

func TestResultPassesThroughEngineError(t *testing.T) {
	engine := &fakeEngine{jobID: "job-1", resultCode: http.StatusBadRequest}
	server := engine.serve(t)
	router, _, uploadDir := newTestProxy(t, server.URL, Options{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/result/job-1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 passthrough, got %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(uploadDir, "job-1.md")); !os.IsNotExist(err) {
		t.Errorf("markdown must not be saved on engine error, stat err = %v", err)
	}
}

func TestLogsPassthrough(t *testing.T) {
	engine := &fakeEngine{jobID: "job-1"}
	server := engine.serve(t)
	router, _, _ := newTestProxy(t, server.URL, Options{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logs/job-1?last_n=5", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if payload["last_n"] != "5" {
		t.Errorf("last_n query was not forwarded: %v", payload)
	}
}
