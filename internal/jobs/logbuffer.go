package jobs

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultLogCapacity はジョブ1件あたりのログ保持件数の上限です。
const DefaultLogCapacity = 100

// LogBuffer はジョブごとの追記専用ログを保持します。容量を超えた分は
// 古い順に破棄されます。プロセス再起動をまたいでは保持されません。
type LogBuffer struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]string
	logger   *log.Logger
	now      func() time.Time
}

// NewLogBuffer は LogBuffer を作成します。capacity が0以下の場合は
// DefaultLogCapacity を使用します。
func NewLogBuffer(capacity int, logger *log.Logger) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LogBuffer{
		capacity: capacity,
		entries:  make(map[string][]string),
		logger:   logger,
		now:      time.Now,
	}
}

// Append はログ1件を整形して追加し、整形済みのエントリを返します。
// 対象ジョブのバッファは初回の追加時に作成されます。
func (b *LogBuffer) Append(jobID, message, level string) string {
	if level == "" {
		level = "INFO"
	}

	b.mu.Lock()
	entry := fmt.Sprintf("[%s] [%s] %s", b.now().Format("15:04:05"), level, message)
	buf := append(b.entries[jobID], entry)
	if len(buf) > b.capacity {
		buf = buf[len(buf)-b.capacity:]
	}
	b.entries[jobID] = buf
	b.mu.Unlock()

	// コンソールにもミラーする
	b.logger.Printf("[Job %s] %s", jobID, entry)
	return entry
}

// Read はジョブのログを追加順で返します。lastN が正の場合は末尾のN件の
// みを返します。ログが存在しないジョブには空のスライスを返します。
func (b *LogBuffer) Read(jobID string, lastN int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.entries[jobID]
	if lastN > 0 && lastN < len(entries) {
		entries = entries[len(entries)-lastN:]
	}
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}

// Drop はジョブのログ履歴を破棄します。
func (b *LogBuffer) Drop(jobID string) {
	b.mu.Lock()
	delete(b.entries, jobID)
	b.mu.Unlock()
}
