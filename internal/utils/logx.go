package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"geo_gate/internal/dataType"
)

// LogxManager keeps one logger per shop, writing info, error and debug lines
// to separate files under basePath/<shop>/.
type LogxManager struct {
	basePath string
	loggers  map[string]*zap.Logger
	files    []*os.File
	mu       sync.RWMutex
}

func NewManager(base string) *LogxManager {
	m := &LogxManager{basePath: base, loggers: make(map[string]*zap.Logger)}

	if err := os.MkdirAll(m.basePath, 0744); err != nil {
		log.Printf("failed to create base log dir %s: %v", m.basePath, err)
	}
	return m
}

func (m *LogxManager) getLogger(shop string) *zap.Logger {
	shop = logDirName(shop)
	m.mu.RLock()
	if lg, ok := m.loggers[shop]; ok {
		m.mu.RUnlock()
		return lg
	}
	m.mu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if lg, ok := m.loggers[shop]; ok {
		return lg
	}
	dir := filepath.Join(m.basePath, shop)
	if err := os.MkdirAll(dir, 0744); err != nil {
		log.Printf("failed to create log dir %s: %v", dir, err)
	}

	encCfg := zapcore.EncoderConfig{MessageKey: "msg", LineEnding: zapcore.DefaultLineEnding}
	encoder := zapcore.NewConsoleEncoder(encCfg)

	infoOut := zapcore.AddSync(m.openLogFile(filepath.Join(dir, "info.log")))
	errorOut := zapcore.AddSync(m.openLogFile(filepath.Join(dir, "error.log")))
	dbgOut := zapcore.AddSync(m.openLogFile(filepath.Join(dir, "debug.log")))

	infoLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l == zapcore.InfoLevel })
	errLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })
	dbgLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l == zapcore.DebugLevel })

	tee := zapcore.NewTee(
		zapcore.NewCore(encoder, infoOut, infoLv),
		zapcore.NewCore(encoder, errorOut, errLv),
		zapcore.NewCore(encoder, dbgOut, dbgLv),
	)
	lg := zap.New(tee)
	m.loggers[shop] = lg
	return lg
}

// logDirName keeps a shop name usable as a single directory component.
func logDirName(shop string) string {
	shop = strings.ToLower(strings.TrimSpace(shop))
	if shop == "" || shop == "." || shop == ".." {
		return "_unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(shop)
}

func (m *LogxManager) openLogFile(path string) *os.File {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", path, err)
		return os.Stdout
	}
	m.files = append(m.files, f)
	return f
}

func formatLine(reqData dataType.VisitorRequest, msg, msg2 string) string {
	country := reqData.Country
	if country == "" {
		country = "-"
	}
	return fmt.Sprintf("%s - - [%s] %s %s %s %s \"%s\" %s",
		reqData.RemoteIP,
		time.Now().Format("02/Jan/2006:15:04:05 -0700"),
		msg,
		reqData.Shop,
		country,
		reqData.Uri,
		reqData.UserAgent,
		msg2,
	)
}

func (m *LogxManager) LogInfo(reqData dataType.VisitorRequest, msg, msg2 string) {
	m.getLogger(reqData.Shop).Info(formatLine(reqData, msg, msg2))
}

func (m *LogxManager) LogError(reqData dataType.VisitorRequest, msg, msg2 string) {
	m.getLogger(reqData.Shop).Error(formatLine(reqData, msg, msg2))
}

func (m *LogxManager) LogDebug(reqData dataType.VisitorRequest, msg, msg2 string) {
	m.getLogger(reqData.Shop).Debug(formatLine(reqData, msg, msg2))
}

// Close flushes and closes every per-shop log file.
func (m *LogxManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lg := range m.loggers {
		_ = lg.Sync()
	}
	for _, f := range m.files {
		_ = f.Close()
	}
	m.loggers = make(map[string]*zap.Logger)
	m.files = nil
}

// NewProcessLogger builds the JSON logger used for startup, jobs and store
// failures. It writes to stderr and, when logPath is set, to logPath/geo_gate.log.
func NewProcessLogger(logPath string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if logPath != "" {
		if err := os.MkdirAll(logPath, 0744); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", logPath, err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(logPath, "geo_gate.log"))
	}
	return cfg.Build()
}
