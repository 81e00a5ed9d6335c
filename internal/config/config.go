// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // 変換エンジンAPIのポート番号
	WebPort string // フロントエンドプロキシのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ジョブ設定
	JobsDir     string // ジョブのメタデータ・入出力ファイルの保存先
	UploadDir   string // プロキシ側のアップロード保存先
	MaxFileSize int64  // 単一PDFの最大サイズ（バイト）
	Debug       bool   // エラー時の一時ファイル削除を抑止するフラグ

	// OCR処理設定
	PdftoppmPath string // poppler pdftoppm 実行ファイルのパス

	// プロキシ設定
	OCRBaseURL        string // 変換エンジンAPIのベースURL
	PreserveFilenames bool   // アップロード元のファイル名を保持するかどうか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		WebPort: getEnv("WEB_PORT", "8081"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ジョブ設定
		JobsDir:     getEnv("JOBS_DIR", "/app/jobs"),
		UploadDir:   getEnv("UPLOAD_DIR", "/app/uploads"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		Debug:       getEnvAsBool("DEBUG", false),

		// OCR処理設定
		PdftoppmPath: getEnv("PDFTOPPM_PATH", "pdftoppm"),

		// プロキシ設定
		OCRBaseURL:        getEnv("OCR_URL", "http://transcriber:5001"),
		PreserveFilenames: getEnvAsBool("PRESERVE_FILENAMES", false),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではディレクトリ設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.JobsDir == "" {
			return fmt.Errorf("JOBS_DIR is required in release mode")
		}
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required in release mode")
		}
		if c.PdftoppmPath == "" {
			return fmt.Errorf("PDFTOPPM_PATH is required in release mode")
		}
		if c.OCRBaseURL == "" {
			return fmt.Errorf("OCR_URL is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。"1" と "true" を真とみなします。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "1" || valueStr == "true"
}
