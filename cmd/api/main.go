// Package main は変換エンジンAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/scan-scribe/internal/config"
	"github.com/yourusername/scan-scribe/internal/jobs"
	"github.com/yourusername/scan-scribe/internal/ocr"
	"github.com/yourusername/scan-scribe/internal/pipeline"
	"github.com/yourusername/scan-scribe/internal/render"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// ジョブストアの初期化と永続ジョブの復旧
	store, err := jobs.NewStore(cfg.JobsDir, logger)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	recovered, err := store.LoadAll()
	if err != nil {
		log.Fatalf("Failed to load persisted jobs: %v", err)
	}
	logger.Printf("Recovered %d persisted jobs from %s", recovered, cfg.JobsDir)

	logs := jobs.NewLogBuffer(jobs.DefaultLogCapacity, logger)

	// 変換パイプラインの配線: pdftoppm + tesseract
	raster := render.NewPoppler(cfg.PdftoppmPath)
	engine := ocr.NewTesseractEngine()
	service, err := pipeline.NewService(raster, engine)
	if err != nil {
		log.Fatalf("Failed to build conversion pipeline: %v", err)
	}

	manager, err := jobs.NewManager(cfg, store, logs, service, logger)
	if err != nil {
		log.Fatalf("Failed to build job manager: %v", err)
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	router.GET("/health", handleHealth)
	router.POST("/process", jobs.ProcessHandler(manager))
	router.GET("/status/:job_id", jobs.StatusHandler(store))
	router.GET("/result/:job_id", jobs.ResultHandler(store))
	router.GET("/logs/:job_id", jobs.LogsHandler(logs))
	router.POST("/cleanup", jobs.CleanupHandler(manager))

	// サーバーの起動
	addr := ":" + cfg.Port
	logger.Printf("Starting OCR engine server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "scan-scribe-api",
		"version": "0.1.0",
	})
}
