// Package logging wraps stdlib log with the off/error/warn/info/debug/trace
// level gate named by --logging (§6). bookget itself logs unconditionally
// with plain log.Printf throughout cmd/bookget.go and router/interface.go;
// this generalises that same call shape with a level check in front of it,
// rather than pulling in a structured-logging library the teacher never
// reaches for. Prefix coloring uses colorstring and x/term the same way
// bookget's go.mod already pulled them in for status-line output.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mitchellh/colorstring"
	"golang.org/x/term"
)

type Level int

const (
	Off Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// ParseLevel parses one of the §6 level names, defaulting to Info on an
// unrecognised string so a typo in --logging never silences the program
// entirely.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return Off
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelInfo
	}
}

// Logger gates log.Printf calls behind a minimum level. Prefixes are
// colorized with colorstring tags when standard error is a terminal;
// piping or redirecting output falls back to plain text automatically.
type Logger struct {
	level Level
	color bool
}

func New(level Level) *Logger {
	return &Logger{level: level, color: term.IsTerminal(int(os.Stderr.Fd()))}
}

func (l *Logger) log(level Level, prefix, colorTag, format string, args ...any) {
	if l == nil || level > l.level {
		return
	}
	if l.color && prefix != "" {
		prefix = colorstring.Color("[" + colorTag + "]" + prefix + "[reset]")
	}
	log.Print(prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, "error: ", "red", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, "warn: ", "yellow", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, "", "", format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, "debug: ", "cyan", format, args...) }
func (l *Logger) Tracef(format string, args ...any) { l.log(LevelTrace, "trace: ", "light_gray", format, args...) }
