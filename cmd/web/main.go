// Package main はフロントエンドプロキシサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/scan-scribe/internal/config"
	"github.com/yourusername/scan-scribe/internal/proxy"
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

	handler, err := proxy.NewHandler(cfg.OCRBaseURL, cfg.UploadDir, proxy.Options{
		PreserveFilename: cfg.PreserveFilenames,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize proxy: %v", err)
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	router.GET("/health", handleHealth)
	router.POST("/convert", handler.Convert)
	router.GET("/status/:job_id", handler.Status)
	router.GET("/logs/:job_id", handler.Logs)
	router.GET("/result/:job_id", handler.Result)

	// サーバーの起動
	addr := ":" + cfg.WebPort
	logger.Printf("Starting web proxy on %s (engine: %s)", addr, cfg.OCRBaseURL)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "scan-scribe-web",
		"version": "0.1.0",
	})
}
