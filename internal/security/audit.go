package security

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	AuditAuthFailed       AuditEventType = "AUTH_FAILED"
	AuditScanStarted      AuditEventType = "SCAN_STARTED"
	AuditScanStopped      AuditEventType = "SCAN_STOPPED"
	AuditScanReconfigured AuditEventType = "SCAN_RECONFIGURED"
	AuditPrefsChanged     AuditEventType = "PREFS_CHANGED"
	AuditFileDownloaded   AuditEventType = "FILE_DOWNLOADED"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Action    string         `json:"action,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
	ErrorMsg  string         `json:"error,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

type requestIDKey struct{}

// WithRequestID stores a request id for audit events.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig keeps a year of audit logs under dir/audit.
func DefaultAuditConfig(dir string) AuditConfig {
	return AuditConfig{
		LogDir:     filepath.Join(dir, "audit"),
		MaxSize:    20,
		MaxBackups: 10,
		MaxAge:     365,
		Compress:   true,
	}
}

// AuditLogger writes control-plane events as JSON lines. A nil
// *AuditLogger discards events.
type AuditLogger struct {
	writer    *lumberjack.Logger
	mu        sync.Mutex
	sessionID string
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &AuditLogger{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "audit.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
		sessionID: uuid.NewString(),
	}, nil
}

// Path returns the active audit file.
func (al *AuditLogger) Path() string {
	if al == nil {
		return ""
	}
	return al.writer.Filename
}

// Log writes an audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if al == nil {
		return nil
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = time.Now().UTC()
	event.SessionID = al.sessionID
	if event.RequestID == "" {
		event.RequestID = RequestID(ctx)
	}

	data, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogAuthFailed records a rejected request.
func (al *AuditLogger) LogAuthFailed(ctx context.Context, path, ip string, source KeySource) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditAuthFailed,
		Action:    path,
		IPAddress: ip,
		Details:   map[string]any{"key_source": string(source)},
	})
}

// LogScan records a scanner control action.
func (al *AuditLogger) LogScan(ctx context.Context, eventType AuditEventType, details map[string]any, err error) error {
	ev := AuditEvent{EventType: eventType, Details: details, Success: err == nil}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	return al.Log(ctx, ev)
}

// LogPrefsChanged records a preferences update.
func (al *AuditLogger) LogPrefsChanged(ctx context.Context, keys []string, err error) error {
	ev := AuditEvent{EventType: AuditPrefsChanged, Details: map[string]any{"keys": keys}, Success: err == nil}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	return al.Log(ctx, ev)
}

// LogDownload records an artifact download.
func (al *AuditLogger) LogDownload(ctx context.Context, name string, err error) error {
	ev := AuditEvent{EventType: AuditFileDownloaded, Action: name, Success: err == nil}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	return al.Log(ctx, ev)
}

// Close flushes and closes the audit file.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	return al.writer.Close()
}
