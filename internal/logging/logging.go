// Package logging routes the standard logger to stdout and an optional log file
// and provides helpers for lifecycle events and wire payloads.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxPayloadRunes bounds how much of a payload is written per log line.
const maxPayloadRunes = 2048

var (
	mu      sync.Mutex
	logFile *os.File
	debug   bool
	console = true
)

// Init points the standard logger at stdout and, when logPath is set, at an
// appended log file. Calling Init again replaces the previous file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
	}

	applyOutput()
	return nil
}

// SetConsole toggles the stdout copy of the log, for full-screen views that
// own the terminal.
func SetConsole(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	console = enabled
	applyOutput()
}

func applyOutput() {
	var writers []io.Writer
	if console {
		writers = append(writers, os.Stdout)
	}
	if logFile != nil {
		writers = append(writers, logFile)
	}
	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(io.MultiWriter(writers...))
}

// Close restores stderr logging and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// SetDebug toggles wire-payload logging.
func SetDebug(enabled bool) {
	mu.Lock()
	debug = enabled
	mu.Unlock()
}

func debugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debug
}

// LogEvent writes a formatted lifecycle event.
func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogRequest writes a wire payload exchanged with an agent or scoring service.
// It is a no-op unless debug logging is enabled.
func LogRequest(direction, target, name string, payload any) {
	if !debugEnabled() {
		return
	}
	log.Println(buildRequestMessage(direction, target, name, payload))
}

func buildRequestMessage(direction, target, name string, payload any) string {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	targetValue := strings.TrimSpace(target)
	if targetValue == "" {
		targetValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("target=%s", targetValue))
	if name = strings.TrimSpace(name); name != "" {
		parts = append(parts, fmt.Sprintf("name=%s", name))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", truncate(formatPayload(payload), maxPayloadRunes)))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func truncate(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}
