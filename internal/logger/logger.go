package logger

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger. It writes to stderr at info level
// until Init replaces it.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Level:           log.InfoLevel,
	Prefix:          "kotomoshi",
})

type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, when set, also receives the log through a rotating writer.
	File string
	// Quiet drops the stderr copy; only useful together with File.
	Quiet bool
}

// Init replaces the global logger.
func Init(cfg Config) error {
	level := log.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return err
		}
		level = parsed
	}

	var writers []io.Writer
	if !cfg.Quiet || cfg.File == "" {
		writers = append(writers, os.Stderr)
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	Logger = log.NewWithOptions(io.MultiWriter(writers...), log.Options{
		ReportCaller:    level == log.DebugLevel,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "kotomoshi",
	})
	return nil
}

// Standard adapts the logger for APIs that want a *log.Logger, such as
// http.Server.ErrorLog.
func Standard() *stdlog.Logger {
	return Logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})
}

func Debug(msg string, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

func Info(msg string, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

func Warn(msg string, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg string, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}
