package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuditEntry is one recorded tool invocation outcome (part of the tool
// registry's observability).
type AuditEntry struct {
	ID              string          `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	CallID          string          `json:"call_id"`
	ToolName        string          `json:"tool_name"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	Success         bool            `json:"success"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// AuditFilter filters a Query over recorded entries.
type AuditFilter struct {
	ToolName  string     `json:"tool_name,omitempty"`
	Success   *bool      `json:"success,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// AuditLogger records and queries tool invocation audit entries.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry) error
	LogAsync(entry AuditEntry)
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	Close() error
}

// AuditBackend is a storage sink an AuditLogger writes entries to.
type AuditBackend interface {
	Write(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
	Close() error
}

// DefaultAuditLogger fans each entry out to every configured backend,
// off the hot path via a bounded async queue and worker pool.
type DefaultAuditLogger struct {
	backends   []AuditBackend
	asyncQueue chan AuditEntry
	wg         sync.WaitGroup
	logger     *zap.Logger
	closeMu    sync.Mutex
	closed     bool
}

// AuditLoggerConfig configures a DefaultAuditLogger.
type AuditLoggerConfig struct {
	Backends       []AuditBackend
	AsyncQueueSize int
	AsyncWorkers   int
}

// NewAuditLogger creates a DefaultAuditLogger and starts its async workers.
func NewAuditLogger(cfg AuditLoggerConfig, logger *zap.Logger) *DefaultAuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AsyncQueueSize == 0 {
		cfg.AsyncQueueSize = 10000
	}
	if cfg.AsyncWorkers == 0 {
		cfg.AsyncWorkers = 4
	}

	al := &DefaultAuditLogger{
		backends:   cfg.Backends,
		asyncQueue: make(chan AuditEntry, cfg.AsyncQueueSize),
		logger:     logger.With(zap.String("component", "tool_audit")),
	}
	for i := 0; i < cfg.AsyncWorkers; i++ {
		al.wg.Add(1)
		go al.asyncWorker()
	}
	return al
}

func (al *DefaultAuditLogger) asyncWorker() {
	defer al.wg.Done()
	for entry := range al.asyncQueue {
		if err := al.writeToBackends(context.Background(), entry); err != nil {
			al.logger.Error("failed to write audit entry", zap.String("call_id", entry.CallID), zap.Error(err))
		}
	}
}

func (al *DefaultAuditLogger) writeToBackends(ctx context.Context, entry AuditEntry) error {
	var lastErr error
	for _, backend := range al.backends {
		if err := backend.Write(ctx, entry); err != nil {
			al.logger.Error("audit backend write failed", zap.String("call_id", entry.CallID), zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// Log records entry synchronously across all backends.
func (al *DefaultAuditLogger) Log(ctx context.Context, entry AuditEntry) error {
	al.closeMu.Lock()
	if al.closed {
		al.closeMu.Unlock()
		return fmt.Errorf("audit logger is closed")
	}
	al.closeMu.Unlock()

	if entry.ID == "" {
		entry.ID = generateAuditID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	return al.writeToBackends(ctx, entry)
}

// LogAsync queues entry for background delivery, dropping it if the queue
// is full rather than blocking the caller's transaction.
func (al *DefaultAuditLogger) LogAsync(entry AuditEntry) {
	al.closeMu.Lock()
	if al.closed {
		al.closeMu.Unlock()
		al.logger.Warn("audit logger is closed, dropping entry")
		return
	}
	al.closeMu.Unlock()

	if entry.ID == "" {
		entry.ID = generateAuditID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	select {
	case al.asyncQueue <- entry:
	default:
		al.logger.Warn("audit queue full, dropping entry", zap.String("call_id", entry.CallID))
	}
}

// Query delegates to the first configured backend.
func (al *DefaultAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if len(al.backends) == 0 {
		return nil, fmt.Errorf("no audit backends configured")
	}
	return al.backends[0].Query(ctx, filter)
}

// Close stops accepting new entries, drains the queue, and closes every
// backend.
func (al *DefaultAuditLogger) Close() error {
	al.closeMu.Lock()
	if al.closed {
		al.closeMu.Unlock()
		return nil
	}
	al.closed = true
	al.closeMu.Unlock()

	close(al.asyncQueue)
	al.wg.Wait()

	var lastErr error
	for _, backend := range al.backends {
		if err := backend.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// MemoryAuditBackend keeps a capacity-bounded in-process ring of entries,
// suitable for the UX's "recent tool calls" queries without external
// storage.
type MemoryAuditBackend struct {
	entries []AuditEntry
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryAuditBackend creates a memory backend bounded to maxSize entries.
func NewMemoryAuditBackend(maxSize int) *MemoryAuditBackend {
	if maxSize <= 0 {
		maxSize = 100000
	}
	return &MemoryAuditBackend{maxSize: maxSize}
}

func (m *MemoryAuditBackend) Write(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.maxSize {
		removeCount := m.maxSize / 10
		if removeCount < 1 {
			removeCount = 1
		}
		m.entries = m.entries[removeCount:]
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryAuditBackend) Query(_ context.Context, filter AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []AuditEntry
	for _, entry := range m.entries {
		if matchesAuditFilter(entry, filter) {
			results = append(results, entry)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return []AuditEntry{}, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (m *MemoryAuditBackend) Close() error { return nil }

func matchesAuditFilter(entry AuditEntry, filter AuditFilter) bool {
	if filter.ToolName != "" && entry.ToolName != filter.ToolName {
		return false
	}
	if filter.Success != nil && entry.Success != *filter.Success {
		return false
	}
	if filter.StartTime != nil && entry.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && entry.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

// FileAuditBackend appends entries as JSON lines to a daily-rotated,
// size-bounded log file.
type FileAuditBackend struct {
	dir         string
	currentFile *os.File
	currentDate string
	maxFileSize int64
	mu          sync.Mutex
	logger      *zap.Logger
}

// FileAuditBackendConfig configures a FileAuditBackend.
type FileAuditBackendConfig struct {
	Directory   string
	MaxFileSize int64
}

// NewFileAuditBackend creates the audit directory and returns a backend
// writing JSONL entries into it.
func NewFileAuditBackend(cfg FileAuditBackendConfig, logger *zap.Logger) (*FileAuditBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Directory == "" {
		cfg.Directory = "./audit_logs"
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 100 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &FileAuditBackend{
		dir:         cfg.Directory,
		maxFileSize: cfg.MaxFileSize,
		logger:      logger.With(zap.String("component", "tool_audit_file")),
	}, nil
}

func (f *FileAuditBackend) Write(_ context.Context, entry AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	currentDate := entry.Timestamp.Format("2006-01-02")
	if f.currentFile == nil || f.currentDate != currentDate {
		if err := f.rotateFile(currentDate); err != nil {
			return err
		}
	}
	if f.currentFile != nil {
		if info, err := f.currentFile.Stat(); err == nil && info.Size() >= f.maxFileSize {
			if err := f.rotateFile(currentDate); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if _, err := f.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (f *FileAuditBackend) rotateFile(date string) error {
	if f.currentFile != nil {
		f.currentFile.Close()
	}
	filename := filepath.Join(f.dir, fmt.Sprintf("audit_%s_%d.jsonl", date, time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create audit file: %w", err)
	}
	f.currentFile = file
	f.currentDate = date
	f.logger.Info("rotated audit file", zap.String("filename", filename))
	return nil
}

// Query is not supported and always returns an error: entries are not kept
// in memory. Use MemoryAuditBackend alongside FileAuditBackend when queries
// matter.
func (f *FileAuditBackend) Query(_ context.Context, _ AuditFilter) ([]AuditEntry, error) {
	return nil, fmt.Errorf("file audit backend does not support querying; pair it with a memory backend")
}

func (f *FileAuditBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentFile != nil {
		err := f.currentFile.Close()
		f.currentFile = nil
		return err
	}
	return nil
}

var (
	auditIDCounter uint64
	auditIDMu      sync.Mutex
)

func generateAuditID() string {
	auditIDMu.Lock()
	defer auditIDMu.Unlock()
	auditIDCounter++
	return fmt.Sprintf("audit_%d_%d", time.Now().UnixNano(), auditIDCounter)
}
