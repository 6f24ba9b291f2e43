package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ANSI color codes
const (
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

const timestampFormat = "02-01-06:15:04:05"

// Entry data keys reserved for caller information.
const (
	locationKey = "_location"
	packageKey  = "_package"
	functionKey = "_function"
)

type contextKey string

const (
	// RequestIDKey holds the per-request ID set by the server middleware
	RequestIDKey contextKey = "request_id"
)

type Logger struct {
	entry *logrus.Entry
	mu    sync.Mutex
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns a singleton logger instance writing to stderr
func GetLogger() *Logger {
	once.Do(func() {
		instance = newLogger(os.Stderr, true)
	})
	return instance
}

// New builds a standalone logger writing uncolored lines to out.
func New(out io.Writer) *Logger {
	return newLogger(out, false)
}

func newLogger(out io.Writer, color bool) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel) // Default to info, no debug logs
	l.SetFormatter(&pipeFormatter{color: color})
	return &Logger{entry: logrus.NewEntry(l)}
}

// pipeFormatter renders
// timestamp | LEVEL | file:line | package | function | message | k=v ...
type pipeFormatter struct {
	color bool
}

func (f *pipeFormatter) Format(e *logrus.Entry) ([]byte, error) {
	level := levelName(e.Level)
	isError := e.Level <= logrus.ErrorLevel && f.color
	if isError {
		level = colorRed + level + colorReset
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s | %s | %v | %v | %v | %s",
		e.Time.Format(timestampFormat),
		level,
		e.Data[locationKey],
		e.Data[packageKey],
		e.Data[functionKey],
		e.Message,
	)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		switch k {
		case locationKey, packageKey, functionKey:
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			if isError {
				fmt.Fprintf(&b, " %s=%s%v%s", k, colorRed, e.Data[k], colorReset)
			} else {
				fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
			}
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.ErrorLevel:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// fields merges caller information (skip frames above the public method)
// with the caller supplied properties.
func (l *Logger) fields(props []map[string]interface{}) logrus.Fields {
	f := logrus.Fields{}
	if len(props) > 0 {
		for k, v := range props[0] {
			f[k] = v
		}
	}

	pc, file, line, ok := runtime.Caller(2)
	if ok {
		f[locationKey] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		f[packageKey] = filepath.Base(filepath.Dir(file))
		if fn := runtime.FuncForPC(pc); fn != nil {
			f[functionKey] = filepath.Base(fn.Name())
		}
	}
	return f
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.WithFields(l.fields(props)).Info(msg)
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.WithFields(l.fields(props)).Error(msg)
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.WithFields(l.fields(props)).Debug(msg)
}

func (l *Logger) Warn(msg string, props ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.WithFields(l.fields(props)).Warn(msg)
}

// EnableDebug enables debug logging
func (l *Logger) EnableDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Logger.SetLevel(logrus.DebugLevel)
}

// DisableDebug disables debug logging
func (l *Logger) DisableDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Logger.SetLevel(logrus.InfoLevel)
}

// WithContext returns a logger that adds the request ID stored in ctx, if
// any, to every line.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	entry := l.entry
	if reqID := ctx.Value(RequestIDKey); reqID != nil {
		entry = entry.WithField("request_id", reqID)
	}
	return &Logger{entry: entry}
}
