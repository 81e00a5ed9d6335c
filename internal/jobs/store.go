package jobs

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// resultSizeThreshold を超える結果本文はメタデータと分離して
// <id>_result.txt へ保存します。メタデータファイルは小さく保たれ、
// 起動時のスキャンが速くなります。
const resultSizeThreshold = 100

const (
	metaSuffix   = ".json"
	resultSuffix = "_result.txt"
)

// persistedRecord はディスク上のメタデータ表現です。結果本文は
// resultRef のタグ付き表現で保持します。
type persistedRecord struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Message    string    `json:"message,omitempty"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	CreatedAt  int64     `json:"created_at"`
	UpdatedAt  int64     `json:"updated_at"`
	Params     Params    `json:"params"`
	Result     resultRef `json:"result"`
}

type resultRef struct {
	Kind ResultRefKind `json:"kind"`
	Text string        `json:"text,omitempty"`
}

// Store はジョブレコードをメモリ上のマップとディスクの両方で管理します。
// 書き込みは都度永続化され、最後に永続化された状態がクラッシュ後の
// 復旧点になります。
type Store struct {
	mu      sync.RWMutex
	dir     string
	records map[string]*Record
	logger  *log.Logger
	now     func() time.Time
}

// NewStore は dir を作成して Store を初期化します。
func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("jobs directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		dir:     dir,
		records: make(map[string]*Record),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Dir はジョブディレクトリを返します。
func (s *Store) Dir() string { return s.dir }

// Create は新規レコードを登録し、直ちに永続化します。
// 同じIDが既に存在する場合は ErrDuplicateID を返します。
func (s *Store) Create(record *Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, record.ID)
	}
	if _, err := os.Stat(s.metaPath(record.ID)); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateID, record.ID)
	}

	now := s.now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = now
	}

	if err := s.persist(record); err != nil {
		return err
	}
	s.records[record.ID] = record.Clone()
	return nil
}

// Get はレコードのコピーを返します。メモリに無い場合はディスクから
// 読み込み、見つかればメモリへ取り込んでから返します。
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	if record, ok := s.records[id]; ok {
		clone := record.Clone()
		s.mu.RUnlock()
		return clone, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok {
		return record.Clone(), nil
	}
	record, err := s.loadFromDisk(id)
	if err != nil {
		return nil, err
	}
	s.records[id] = record
	return record.Clone(), nil
}

// Update は mutate による変更を適用し、UpdatedAt を進めて永続化します。
// UpdatedAt は単調非減少です。
func (s *Store) Update(id string, mutate func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		loaded, err := s.loadFromDisk(id)
		if err != nil {
			return nil, err
		}
		record = loaded
		s.records[id] = record
	}

	mutate(record)
	if updated := s.now().Unix(); updated > record.UpdatedAt {
		record.UpdatedAt = updated
	}

	if err := s.persist(record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Delete はメモリとディスクの両方からジョブを取り除きます。
// メタデータ・結果ファイル・入出力ファイルをまとめて削除します。
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		loaded, err := s.loadFromDisk(id)
		if err != nil {
			return err
		}
		record = loaded
	}

	delete(s.records, id)
	s.removeArtifacts(record)
	return nil
}

// LoadAll は起動時にジョブディレクトリ内の全メタデータを読み込みます。
// pending / processing のまま残っているジョブは再開も失敗扱いもせず、
// 最後に永続化された状態のまま保持します。
func (s *Store) LoadAll() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to scan jobs directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, metaSuffix)
		record, err := s.loadFromDisk(id)
		if err != nil {
			s.logger.Printf("skipping unreadable job metadata %s: %v", name, err)
			continue
		}
		s.records[id] = record
		loaded++
	}
	return loaded, nil
}

// CleanupOlderThan は cutoff より前に作成されたジョブを削除し、
// 削除したジョブIDの一覧を返します。
func (s *Store) CleanupOlderThan(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	limit := cutoff.Unix()
	for id, record := range s.records {
		if record.CreatedAt >= limit {
			continue
		}
		delete(s.records, id)
		s.removeArtifacts(record)
		removed = append(removed, id)
	}
	return removed
}

func (s *Store) persist(record *Record) error {
	meta := persistedRecord{
		ID:         record.ID,
		Status:     record.Status,
		Message:    record.Message,
		InputPath:  record.InputPath,
		OutputPath: record.OutputPath,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
		Params:     record.Params,
		Result:     resultRef{Kind: ResultNone},
	}

	if record.Status == StatusCompleted {
		if len(record.Result) > resultSizeThreshold {
			meta.Result = resultRef{Kind: ResultExternal}
			if err := os.WriteFile(s.resultPath(record.ID), []byte(record.Result), 0o640); err != nil {
				return fmt.Errorf("failed to write result file: %w", err)
			}
		} else {
			meta.Result = resultRef{Kind: ResultInline, Text: record.Result}
		}
	}

	file, err := os.OpenFile(s.metaPath(record.ID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open job metadata: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&meta); err != nil {
		return fmt.Errorf("failed to write job metadata: %w", err)
	}
	return nil
}

func (s *Store) loadFromDisk(id string) (*Record, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read job metadata: %w", err)
	}

	var meta persistedRecord
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse job metadata: %w", err)
	}

	record := &Record{
		ID:         meta.ID,
		Status:     meta.Status,
		Message:    meta.Message,
		InputPath:  meta.InputPath,
		OutputPath: meta.OutputPath,
		CreatedAt:  meta.CreatedAt,
		UpdatedAt:  meta.UpdatedAt,
		Params:     meta.Params,
	}

	switch meta.Result.Kind {
	case ResultInline:
		record.Result = meta.Result.Text
	case ResultExternal:
		body, err := os.ReadFile(s.resultPath(id))
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read result file: %w", err)
			}
			// completed なのに本文が無い場合でもレコードは返す。
			// 整合性異常は /result 側で 500 として報告される。
			s.logger.Printf("job %s result file is missing", id)
		} else {
			record.Result = string(body)
		}
	}

	return record, nil
}

func (s *Store) removeArtifacts(record *Record) {
	candidates := []string{
		s.metaPath(record.ID),
		s.resultPath(record.ID),
		record.InputPath,
		record.OutputPath,
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Printf("failed to remove job artifact %s: %v", path, err)
		}
	}
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaSuffix)
}

func (s *Store) resultPath(id string) string {
	return filepath.Join(s.dir, id+resultSuffix)
}
