// Package logger provides leveled text logging for the engine's process
// lifecycle. The engine is quiet by default; everything it says is at Debug.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	nocolor   = "0"
	red       = "31"
	yellow    = "33"
	gray      = "38;5;251"
	lightgray = "38;5;243"
	cyan      = "1;36"
)

const dateFormat = "2006-01-02 15:04:05"

var mutex = sync.Mutex{}

type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Notice(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)

	WithPrefix(prefix string) Logger
	SetLevel(level Level)
	Level() Level
}

// TextLogger writes human-readable lines, with color when the output is a
// terminal.
type TextLogger struct {
	MinLevel Level
	Colors   bool
	Prefix   string
	Writer   io.Writer
}

// NewTextLogger returns a logger writing to stderr at NOTICE.
func NewTextLogger() Logger {
	return &TextLogger{
		MinLevel: NOTICE,
		Colors:   ColorsAvailable(),
		Writer:   os.Stderr,
	}
}

// ColorsAvailable reports whether stdout is a terminal.
func ColorsAvailable() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// WithPrefix returns a copy of the logger with the provided prefix.
func (l *TextLogger) WithPrefix(prefix string) Logger {
	clone := *l
	clone.Prefix = prefix
	return &clone
}

func (l *TextLogger) SetLevel(level Level) {
	l.MinLevel = level
}

func (l *TextLogger) Level() Level {
	return l.MinLevel
}

func (l *TextLogger) Debug(format string, v ...any) {
	if l.MinLevel <= DEBUG {
		l.log(DEBUG, format, v...)
	}
}

func (l *TextLogger) Info(format string, v ...any) {
	if l.MinLevel <= INFO {
		l.log(INFO, format, v...)
	}
}

func (l *TextLogger) Notice(format string, v ...any) {
	if l.MinLevel <= NOTICE {
		l.log(NOTICE, format, v...)
	}
}

func (l *TextLogger) Warn(format string, v ...any) {
	if l.MinLevel <= WARN {
		l.log(WARN, format, v...)
	}
}

func (l *TextLogger) Error(format string, v ...any) {
	l.log(ERROR, format, v...)
}

func (l *TextLogger) log(level Level, format string, v ...any) {
	message := fmt.Sprintf(format, v...)
	now := time.Now().Format(dateFormat)
	line := ""

	if l.Colors {
		levelColor := gray
		messageColor := nocolor

		switch level {
		case DEBUG:
			messageColor = gray
		case NOTICE:
			levelColor = cyan
		case WARN:
			levelColor = yellow
		case ERROR:
			levelColor = red
			messageColor = red
		}

		if l.Prefix != "" {
			line = fmt.Sprintf("\x1b[%sm%s %-6s\x1b[0m \x1b[%sm%s\x1b[0m \x1b[%sm%s\x1b[0m\n", levelColor, now, level, lightgray, l.Prefix, messageColor, message)
		} else {
			line = fmt.Sprintf("\x1b[%sm%s %-6s\x1b[0m \x1b[%sm%s\x1b[0m\n", levelColor, now, level, messageColor, message)
		}
	} else {
		if l.Prefix != "" {
			line = fmt.Sprintf("%s %-6s %s %s\n", now, level, l.Prefix, message)
		} else {
			line = fmt.Sprintf("%s %-6s %s\n", now, level, message)
		}
	}

	// One line at a time, whatever goroutine is talking.
	mutex.Lock()
	fmt.Fprint(l.Writer, line)
	mutex.Unlock()
}

// Discard throws everything away.
var Discard = &discardLogger{}

type discardLogger struct{}

func (d *discardLogger) Debug(string, ...any)           {}
func (d *discardLogger) Info(string, ...any)            {}
func (d *discardLogger) Notice(string, ...any)          {}
func (d *discardLogger) Warn(string, ...any)            {}
func (d *discardLogger) Error(string, ...any)           {}
func (d *discardLogger) WithPrefix(string) Logger       { return d }
func (d *discardLogger) SetLevel(Level)                 {}
func (d *discardLogger) Level() Level                   { return ERROR }
