package security

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// AccessLogEntry is one line of the control API's access log: every
// request the loopback server handled, whether it was authorized or
// rejected.
type AccessLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	UserAgent string    `json:"user_agent"`
	Action    string    `json:"action"`
	Status    int       `json:"status"`
	Details   string    `json:"details"`
}

// AuditLogger appends AccessLogEntry records to a JSON-lines file under
// the launcher's data directory and, when a UI context is attached,
// republishes them as a wails event so a host window can render a live
// access feed. No window/webview code lives here; EventsEmit is a no-op
// without a running wails runtime, which is exactly the "headless by
// default" case for a CLI invocation.
type AuditLogger struct {
	ctx     context.Context
	logFile *os.File
	mu      sync.Mutex
	logPath string
	logger  *slog.Logger
}

// NewAuditLogger opens (creating if needed) dataDir/logs/control_api.log.
func NewAuditLogger(logger *slog.Logger, dataDir string) *AuditLogger {
	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	path := filepath.Join(logDir, "control_api.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
	}

	return &AuditLogger{
		logFile: f,
		logPath: path,
		logger:  logger,
	}
}

// SetContext attaches a wails runtime context so future entries are also
// emitted as a UI event. Safe to leave unset for headless operation.
func (a *AuditLogger) SetContext(ctx context.Context) {
	a.ctx = ctx
}

// Log records one access attempt.
func (a *AuditLogger) Log(sourceIP, userAgent, action string, status int, details string) {
	entry := AccessLogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		SourceIP:  sourceIP,
		UserAgent: userAgent,
		Action:    action,
		Status:    status,
		Details:   details,
	}

	a.mu.Lock()
	if a.logFile != nil {
		b, _ := json.Marshal(entry)
		a.logFile.WriteString(string(b) + "\n")
	}
	a.mu.Unlock()

	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "onAuditLog", entry)
	}

	level := slog.LevelInfo
	if status >= 400 {
		level = slog.LevelWarn
	}
	a.logger.Log(context.Background(), level, "control api access", "action", action, "status", status, "ip", sourceIP)
}

func (a *AuditLogger) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// RecentLogs returns up to limit of the most recent entries, newest first.
func (a *AuditLogger) RecentLogs(limit int) []AccessLogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	content, err := os.ReadFile(a.logPath)
	if err != nil {
		return []AccessLogEntry{}
	}

	lines := strings.Split(string(content), "\n")
	var entries []AccessLogEntry
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var entry AccessLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
		if len(entries) >= limit {
			break
		}
	}
	return entries
}
