package logging

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
)

// ConsoleLogger implements the LoggingGateway interface, writing leveled
// lines to stderr so stream output on stdout stays clean.
type ConsoleLogger struct {
	logger *log.Logger
	mutex  sync.RWMutex
	level  ports.LogLevel
}

// NewConsoleLogger creates a console logger at the given level.
func NewConsoleLogger(out io.Writer, level ports.LogLevel) *ConsoleLogger {
	return &ConsoleLogger{
		logger: log.New(out, "[tenq] ", log.LstdFlags),
		level:  level,
	}
}

var levelOrder = map[ports.LogLevel]int{
	ports.LogLevelDebug: 0,
	ports.LogLevelInfo:  1,
	ports.LogLevelWarn:  2,
	ports.LogLevelError: 3,
}

// Log logs a message with the specified level
func (l *ConsoleLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}
	l.logger.Printf("%s %s%s", strings.ToUpper(string(level)), message, formatFields(fields))
}

// LogError logs an error
func (l *ConsoleLogger) LogError(err error, message string, fields map[string]interface{}) {
	if !l.enabled(ports.LogLevelError) {
		return
	}
	l.logger.Printf("ERROR %s: %v%s", message, err, formatFields(fields))
}

// SetLogLevel sets the logging level
func (l *ConsoleLogger) SetLogLevel(level ports.LogLevel) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.level = level
}

// GetLogLevel returns the current logging level
func (l *ConsoleLogger) GetLogLevel() ports.LogLevel {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.level
}

func (l *ConsoleLogger) enabled(level ports.LogLevel) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return levelOrder[level] >= levelOrder[l.level]
}

// formatFields renders fields as " key=value" pairs in stable order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
