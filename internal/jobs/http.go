package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ProcessHandler は POST /process のハンドラーを返します。
func ProcessHandler(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "envíe el PDF en el campo 'file' como multipart/form-data",
			})
			return
		}

		params := Params{
			DPI:           intForm(c, "dpi", DefaultDPI),
			ConfThreshold: intForm(c, "conf_threshold", DefaultConfThreshold),
			Lang:          stringForm(c, "lang", DefaultLang),
		}
		if raw := strings.TrimSpace(c.PostForm("area")); raw != "" {
			params.Area = parseArea(raw)
			if params.Area == nil {
				// 不正な area はエラーにせず切り抜きなしで続行する
				manager.logger.Printf("ignoring malformed area parameter: %q", raw)
			}
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "no se pudo leer el archivo subido",
			})
			return
		}
		defer file.Close()

		record, err := manager.Submit(c.Request.Context(), file, params)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"job_id":  record.ID,
			"status":  record.Status,
			"message": "Procesamiento iniciado. Consulte el estado con el endpoint /status/{job_id}",
		})
	}
}

// StatusHandler は GET /status/:job_id のハンドラーを返します。
// result は completed のときにのみ含まれます。
func StatusHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := store.Get(strings.TrimSpace(c.Param("job_id")))
		if err != nil {
			respondWithError(c, err)
			return
		}

		payload := gin.H{
			"job_id":     record.ID,
			"status":     record.Status,
			"created_at": record.CreatedAt,
			"updated_at": record.UpdatedAt,
			"params":     record.Params,
		}
		if record.Message != "" {
			payload["message"] = record.Message
		}
		if record.Status == StatusCompleted && record.Result != "" {
			payload["result"] = record.Result
		}

		c.JSON(http.StatusOK, payload)
	}
}

// ResultHandler は GET /result/:job_id のハンドラーを返します。
// 完了済みジョブのMarkdown本文をそのまま返します。
func ResultHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := store.Get(strings.TrimSpace(c.Param("job_id")))
		if err != nil {
			respondWithError(c, err)
			return
		}

		if record.Status != StatusCompleted {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "JOB_NOT_COMPLETED",
				"message": fmt.Sprintf("el trabajo aún no está completado (estado actual: %s)", record.Status),
			})
			return
		}
		if record.Result == "" {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "RESULT_MISSING",
				"message": "el trabajo está marcado como completado pero no tiene resultado",
			})
			return
		}

		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(record.Result))
	}
}

// LogsHandler は GET /logs/:job_id のハンドラーを返します。ログが無い
// ジョブには空のリストを返します（エラーにはしません）。
func LogsHandler(logs *LogBuffer) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("job_id"))

		lastN := 0
		if raw := c.Query("last_n"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				lastN = v
			}
		}

		c.JSON(http.StatusOK, gin.H{"logs": logs.Read(jobID, lastN)})
	}
}

// CleanupHandler は POST /cleanup のハンドラーを返します。days より古い
// ジョブを削除し、削除件数を返します。
func CleanupHandler(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 1
		if raw := c.Query("days"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				days = v
			}
		}

		removed := manager.Cleanup(days)
		c.JSON(http.StatusOK, gin.H{
			"removed": removed,
			"message": fmt.Sprintf("se eliminaron %d trabajos antiguos", removed),
		})
	}
}

// parseArea は area フィールドのJSON配列を解釈します。形式または座標が
// 不正な場合は nil を返します。
func parseArea(raw string) *Area {
	var area Area
	if err := json.Unmarshal([]byte(raw), &area); err != nil {
		return nil
	}
	if !area.Valid() {
		return nil
	}
	return &area
}

func intForm(c *gin.Context, field string, defaultValue int) int {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func stringForm(c *gin.Context, field, defaultValue string) string {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return defaultValue
	}
	return raw
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "el trabajo indicado no existe",
		})
	case errors.Is(err, ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "DUPLICATE_JOB",
			"message": "ya existe un trabajo con ese identificador",
		})
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case "LIMIT_EXCEEDED":
			status = http.StatusRequestEntityTooLarge
		case "INTERNAL_ERROR":
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "error interno del servidor",
		})
	}
}
