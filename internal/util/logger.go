package util

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

var Logger *log.Logger

// prefixStyle renders the badge shown before every log line
var prefixStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(lipgloss.Color("#0EA5E9")).
	Bold(true).
	Padding(0, 1).
	MarginRight(1)

// InitLogger initializes the global logger on stderr
func InitLogger() {
	InitLoggerWithWriter(os.Stderr)
}

// InitLoggerWithWriter initializes the global logger on the given writer.
// Caller and timestamp reporting follow the debug flag.
func InitLoggerWithWriter(w io.Writer) {
	Logger = log.NewWithOptions(w, log.Options{
		ReportCaller:    IsDebug,
		ReportTimestamp: IsDebug,
		TimeFormat:      "15:04:05",
		Prefix:          prefixStyle.Render("Gostream"),
	})
	Logger.SetColorProfile(termenv.TrueColor)

	if IsDebug {
		Logger.SetLevel(log.DebugLevel)
		Logger.Debug("Debug logging enabled")
		return
	}
	Logger.SetLevel(log.InfoLevel)
}

// Debug logs a debug message (only when debug mode is enabled)
func Debug(msg any, keyvals ...any) {
	if IsDebug && Logger != nil {
		Logger.Debug(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Info logs an info message
func Info(msg any, keyvals ...any) {
	if Logger != nil {
		Logger.Info(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg any, keyvals ...any) {
	if Logger != nil {
		Logger.Warn(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Error logs an error message
func Error(msg any, keyvals ...any) {
	if Logger != nil {
		Logger.Error(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Debugf logs a formatted debug message (only when debug mode is enabled)
func Debugf(format string, args ...any) {
	if IsDebug && Logger != nil {
		Logger.Debug(fmt.Sprintf(format, args...))
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...any) {
	if Logger != nil {
		Logger.Warn(fmt.Sprintf(format, args...))
	}
}
