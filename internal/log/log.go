//nolint:revive // Package name kept as "log" for stable internal imports.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	mu        sync.Mutex
	debugMode = false
	stdout    io.Writer = os.Stdout
	stderr    io.Writer = os.Stderr
)

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugMode = enabled
}

// SetOutput redirects informational and error output. Passing nil keeps the
// current writer.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}

func emit(w io.Writer, prefix string, format string, elem ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(w, prefix+fmt.Sprintf(format, elem...))
}

// Debug logs debug messages when debug mode is enabled
func Debug(format string, elem ...any) {
	mu.Lock()
	enabled := debugMode
	mu.Unlock()
	if enabled {
		emit(stdout, color.CyanString("[DEBUG] "), format, elem...)
	}
}

// Info logs an informational message
func Info(format string, elem ...any) {
	emit(stdout, color.BlueString("[x] "), format, elem...)
}

// InfoH2 logs an indented informational message
func InfoH2(format string, elem ...any) {
	emit(stdout, color.GreenString("  [x] "), format, elem...)
}

// Warn logs a warning to stderr
func Warn(format string, elem ...any) {
	emit(stderr, color.YellowString("[!] "), format, elem...)
}

// Error logs an error message to stderr
func Error(format string, elem ...any) {
	emit(stderr, color.RedString("[x] "), format, elem...)
}

// Writer returns an io.Writer that forwards each write as an InfoH2 line.
// Used to plug the colored logger into components that take a progress writer.
func Writer() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		msg := string(p)
		for len(msg) > 0 && msg[len(msg)-1] == '\n' {
			msg = msg[:len(msg)-1]
		}
		InfoH2("%s", msg)
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
