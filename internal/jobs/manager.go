package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/scan-scribe/internal/config"
	"github.com/yourusername/scan-scribe/internal/pipeline"
)

// Runner はPDF→Markdown変換の実体です。pipeline.Service が実装します。
type Runner interface {
	Convert(ctx context.Context, inputPDF, outputMD string, opts pipeline.Options, logf func(string)) error
}

// Manager はジョブの受付と実行を担います。1つのジョブIDに対する実行の
// ディスパッチは Submit 経路で一度だけ行われ、同一IDが並行して実行される
// ことはありません。
type Manager struct {
	cfg    *config.Config
	store  *Store
	logs   *LogBuffer
	runner Runner
	logger *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store *Store, logs *LogBuffer, runner Runner, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logs == nil {
		return nil, errors.New("log buffer is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		logs:   logs,
		runner: runner,
		logger: logger,
	}, nil
}

// Submit はアップロードされたPDFを保存し、pending 状態のジョブを登録して
// バックグラウンド実行をスケジュールします。呼び出し元はブロックされません。
func (m *Manager) Submit(ctx context.Context, r io.Reader, params Params) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	inputPath := filepath.Join(m.store.Dir(), jobID+".pdf")
	outputPath := filepath.Join(m.store.Dir(), jobID+".md")

	if err := saveUpload(r, inputPath, m.cfg.MaxFileSize); err != nil {
		_ = os.Remove(inputPath)
		return nil, err
	}
	if err := validatePDF(inputPath); err != nil {
		_ = os.Remove(inputPath)
		return nil, err
	}

	record := &Record{
		ID:         jobID,
		Status:     StatusPending,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Params:     params.Normalize(),
	}
	if err := m.store.Create(record); err != nil {
		_ = os.Remove(inputPath)
		return nil, err
	}

	go m.run(jobID)
	return record.Clone(), nil
}

// Cleanup は閾値より古いジョブをストアとディスクから削除し、削除件数を
// 返します。削除されたジョブのログ履歴も破棄します。
func (m *Manager) Cleanup(olderThanDays int) int {
	if olderThanDays <= 0 {
		olderThanDays = 1
	}
	cutoff := time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	removed := m.store.CleanupOlderThan(cutoff)
	for _, id := range removed {
		m.logs.Drop(id)
	}
	return len(removed)
}

// run は1ジョブの変換を最後まで実行します。各ジョブIDに対して一度だけ
// 呼び出されます。
func (m *Manager) run(jobID string) {
	record, err := m.store.Update(jobID, func(r *Record) {
		r.Status = StatusProcessing
	})
	if err != nil {
		m.logger.Printf("failed to mark job %s as processing: %v", jobID, err)
		return
	}

	params := record.Params
	m.logs.Append(jobID, "Iniciando procesamiento del documento PDF", "INFO")
	m.logs.Append(jobID, fmt.Sprintf("Configuración: DPI=%d, LANG=%s, THRESHOLD=%d", params.DPI, params.Lang, params.ConfThreshold), "INFO")
	if params.Area != nil {
		m.logs.Append(jobID, fmt.Sprintf("Procesando área específica: %v", *params.Area), "INFO")
	}
	m.logs.Append(jobID, fmt.Sprintf("Documento recibido: %s", filepath.Base(record.InputPath)), "INFO")

	if pages, err := pdfapi.PageCountFile(record.InputPath); err != nil {
		m.logs.Append(jobID, fmt.Sprintf("No se pudo determinar el número de páginas: %v", err), "WARNING")
	} else {
		m.logs.Append(jobID, fmt.Sprintf("El documento tiene %d páginas", pages), "INFO")
	}

	m.logs.Append(jobID, "Iniciando proceso de OCR (reconocimiento óptico de caracteres)", "INFO")

	if runErr := m.convert(record); runErr != nil {
		m.failJob(record, runErr)
		return
	}

	result, err := os.ReadFile(record.OutputPath)
	if err != nil {
		m.failJob(record, fmt.Errorf("no se pudo leer el Markdown generado: %w", err))
		return
	}

	m.logs.Append(jobID, "Proceso completado exitosamente", "INFO")
	if _, err := m.store.Update(jobID, func(r *Record) {
		r.Status = StatusCompleted
		r.Result = string(result)
	}); err != nil {
		m.logger.Printf("failed to mark job %s as completed: %v", jobID, err)
	}
}

// convert はパイプラインを実行します。パイプライン内のパニックも失敗として
// 回収し、共有プロセスを道連れにしません。
func (m *Manager) convert(record *Record) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pánico durante el procesamiento: %v", rec)
		}
	}()

	opts := pipeline.Options{
		DPI:           record.Params.DPI,
		Lang:          record.Params.Lang,
		ConfThreshold: record.Params.ConfThreshold,
	}
	if record.Params.Area != nil {
		rect := record.Params.Area.Rect()
		opts.Area = &rect
	}

	sink := func(message string) {
		m.logs.Append(record.ID, message, "INFO")
	}
	return m.runner.Convert(context.Background(), record.InputPath, record.OutputPath, opts, sink)
}

func (m *Manager) failJob(record *Record, runErr error) {
	m.logs.Append(record.ID, fmt.Sprintf("Error durante el procesamiento: %v", runErr), "ERROR")
	if _, err := m.store.Update(record.ID, func(r *Record) {
		r.Status = StatusError
		r.Message = runErr.Error()
	}); err != nil {
		m.logger.Printf("failed to mark job %s as error: %v", record.ID, err)
	}

	// DEBUGフラグが立っている場合は調査用に一時ファイルを残す
	if m.cfg.Debug {
		return
	}
	for _, path := range []string{record.InputPath, record.OutputPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				m.logger.Printf("failed to remove temp file %s: %v", path, err)
			}
			continue
		}
		m.logs.Append(record.ID, fmt.Sprintf("Eliminado archivo temporal %s", filepath.Base(path)), "INFO")
	}
}

func saveUpload(r io.Reader, path string, maxSize int64) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return newError("INTERNAL_ERROR", "no se pudo guardar el PDF recibido", err)
	}
	defer file.Close()

	limited := r
	if maxSize > 0 {
		limited = io.LimitReader(r, maxSize+1)
	}
	written, err := io.Copy(file, limited)
	if err != nil {
		return newError("INTERNAL_ERROR", "no se pudo guardar el PDF recibido", err)
	}
	if maxSize > 0 && written > maxSize {
		return newError("LIMIT_EXCEEDED", "el archivo supera el tamaño máximo permitido", nil)
	}
	return nil
}

func validatePDF(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return newError("INVALID_INPUT", "no se pudo analizar el archivo subido", err)
	}
	if !mtype.Is("application/pdf") {
		return newError("INVALID_INPUT", fmt.Sprintf("el archivo no es un PDF (detectado: %s)", mtype.String()), nil)
	}
	return nil
}
