// Package proxy はフロントエンド用プロキシを提供します。アップロードを
// 受け取って変換エンジンへ転送し、状態・ログ・結果の問い合わせを中継します。
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Options はプロキシの動作バリエーションです。
type Options struct {
	// PreserveFilename が真の場合、アップロード元のファイル名のまま保存します。
	// 偽の場合はUUIDにリネームします。
	PreserveFilename bool
}

// ActiveJob はプロキシが受け付けたジョブの追跡情報です。
type ActiveJob struct {
	PDFFilename string `json:"pdf_filename"`
	PDFPath     string `json:"-"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
}

// Handler は変換エンジンへの中継を担います。
type Handler struct {
	engineURL string
	uploadDir string
	opts      Options
	client    *http.Client
	logger    *log.Logger

	mu         sync.Mutex
	activeJobs map[string]*ActiveJob
}

// NewHandler は Handler を初期化し、アップロード先ディレクトリを作成します。
func NewHandler(engineURL, uploadDir string, opts Options, logger *log.Logger) (*Handler, error) {
	if engineURL == "" {
		return nil, fmt.Errorf("engine URL is required")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		engineURL:  strings.TrimRight(engineURL, "/"),
		uploadDir:  uploadDir,
		opts:       opts,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		activeJobs: make(map[string]*ActiveJob),
	}, nil
}

// Convert は POST /convert を処理します。PDFを保存してエンジンへ転送し、
// 発行されたジョブIDを返します。
func (h *Handler) Convert(c *gin.Context) {
	fileHeader, err := c.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "envíe el PDF en el campo 'pdf' como multipart/form-data",
		})
		return
	}

	storedName := uuid.New().String() + ".pdf"
	if h.opts.PreserveFilename && fileHeader.Filename != "" {
		storedName = filepath.Base(fileHeader.Filename)
	}
	pdfPath := filepath.Join(h.uploadDir, storedName)
	if err := c.SaveUploadedFile(fileHeader, pdfPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "no se pudo guardar el PDF recibido",
		})
		return
	}

	fields := map[string]string{
		"dpi":            c.DefaultPostForm("dpi", "300"),
		"conf_threshold": c.DefaultPostForm("conf_threshold", "60"),
		"lang":           c.DefaultPostForm("lang", "spa"),
	}
	if area := buildArea(c); area != "" {
		fields["area"] = area
	}

	jobID, err := h.submitToEngine(pdfPath, storedName, fields)
	if err != nil {
		h.logger.Printf("engine submission failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    "ENGINE_UNAVAILABLE",
			"message": "no se pudo iniciar el procesamiento en el motor OCR",
		})
		return
	}

	h.mu.Lock()
	h.activeJobs[jobID] = &ActiveJob{
		PDFFilename: storedName,
		PDFPath:     pdfPath,
		Status:      "pending",
		CreatedAt:   time.Now().Unix(),
	}
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"job_id":       jobID,
		"status":       "pending",
		"pdf_filename": storedName,
	})
}

// Status は GET /status/:job_id をエンジンへ中継し、追跡テーブルの状態も
// 更新します。
func (h *Handler) Status(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	body, statusCode, err := h.fetch(h.engineURL + "/status/" + url.PathEscape(jobID))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    "ENGINE_UNAVAILABLE",
			"message": fmt.Sprintf("error al consultar el estado: %v", err),
		})
		return
	}

	if statusCode == http.StatusOK {
		var payload struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Status != "" {
			h.mu.Lock()
			if job, ok := h.activeJobs[jobID]; ok {
				job.Status = payload.Status
			}
			h.mu.Unlock()
		}
	}

	c.Data(statusCode, "application/json; charset=utf-8", body)
}

// Logs は GET /logs/:job_id をエンジンへ中継します。
func (h *Handler) Logs(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	target := h.engineURL + "/logs/" + url.PathEscape(jobID)
	if raw := c.Query("last_n"); raw != "" {
		target += "?last_n=" + url.QueryEscape(raw)
	}

	body, statusCode, err := h.fetch(target)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    "ENGINE_UNAVAILABLE",
			"message": fmt.Sprintf("error al consultar los logs: %v", err),
		})
		return
	}
	c.Data(statusCode, "application/json; charset=utf-8", body)
}

// Result は GET /result/:job_id をエンジンへ中継します。取得に成功した
// Markdownはダウンロード用に <job_id>.md としてアップロード先に保存します。
func (h *Handler) Result(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("job_id"))
	body, statusCode, err := h.fetch(h.engineURL + "/result/" + url.PathEscape(jobID))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    "ENGINE_UNAVAILABLE",
			"message": fmt.Sprintf("error al obtener el resultado: %v", err),
		})
		return
	}
	if statusCode != http.StatusOK {
		c.Data(statusCode, "application/json; charset=utf-8", body)
		return
	}

	mdPath := filepath.Join(h.uploadDir, jobID+".md")
	if err := os.WriteFile(mdPath, body, 0o640); err != nil {
		h.logger.Printf("failed to save markdown for job %s: %v", jobID, err)
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", body)
}

// ActiveJobs は追跡中のジョブのスナップショットを返します。
func (h *Handler) ActiveJobs() map[string]ActiveJob {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]ActiveJob, len(h.activeJobs))
	for id, job := range h.activeJobs {
		out[id] = *job
	}
	return out
}

func (h *Handler) submitToEngine(pdfPath, filename string, fields map[string]string) (string, error) {
	file, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to reopen upload: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := h.client.Post(h.engineURL+"/process", writer.FormDataContentType(), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("invalid engine response: %w", err)
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("engine response is missing job_id")
	}
	return payload.JobID, nil
}

func (h *Handler) fetch(target string) ([]byte, int, error) {
	resp, err := h.client.Get(target)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// buildArea は process_areas と area_left/top/right/bottom のフォーム値から
// エンジンへ渡す area 配列を組み立てます。無効な場合は空文字を返します。
func buildArea(c *gin.Context) string {
	enabled, _ := strconv.ParseBool(c.DefaultPostForm("process_areas", "false"))
	if !enabled {
		return ""
	}

	left := intFormValue(c, "area_left")
	top := intFormValue(c, "area_top")
	right := intFormValue(c, "area_right")
	bottom := intFormValue(c, "area_bottom")
	if right <= 0 || bottom <= 0 {
		return ""
	}

	data, err := json.Marshal([4]int{left, top, right, bottom})
	if err != nil {
		return ""
	}
	return string(data)
}

func intFormValue(c *gin.Context, field string) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.PostForm(field)))
	if err != nil {
		return 0
	}
	return v
}
