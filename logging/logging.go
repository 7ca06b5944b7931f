// Package logging is the diagnostic sink shared by every hook. Messages are
// tagged with a category set and only emitted when one of their categories is
// enabled.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

type Category uint32

const (
	None Category = 0
	Hook Category = 1 << (iota - 1)
	Sleep
	Timer
	Frame
	Registry
	Resolve
	Thread
	Window
	Error
	// Frequent marks messages emitted on hot paths, e.g. sleeps from
	// secondary threads. They are dropped unless Frequent is enabled.
	Frequent

	All = Hook | Sleep | Timer | Frame | Registry | Resolve | Thread | Window | Error
)

var categoryNames = []struct {
	cat  Category
	name string
}{
	{Hook, "hook"},
	{Sleep, "sleep"},
	{Timer, "timer"},
	{Frame, "frame"},
	{Registry, "registry"},
	{Resolve, "resolve"},
	{Thread, "thread"},
	{Window, "window"},
	{Error, "error"},
	{Frequent, "frequent"},
}

func (c Category) String() string {
	if c == None {
		return "none"
	}
	var parts []string
	for _, cn := range categoryNames {
		if c&cn.cat != 0 {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseCategories turns names such as "hook" or "sleep" into a category set.
// "all" enables everything except Frequent.
func ParseCategories(names []string) (Category, error) {
	var c Category
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if name == "all" {
			c |= All
			continue
		}
		found := false
		for _, cn := range categoryNames {
			if cn.name == name {
				c |= cn.cat
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown log category %q", name)
		}
	}
	return c, nil
}

type Logger struct {
	entry   *log.Entry
	enabled Category
}

// New creates a logger writing to out at the given level. Only messages that
// share a category with enabled are emitted.
func New(out io.Writer, level log.Level, enabled Category) *Logger {
	l := log.New()
	l.SetOutput(out)
	l.SetLevel(level)
	formatter := &log.TextFormatter{FullTimestamp: true}
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		formatter.ForceColors = true
	} else {
		formatter.DisableColors = true
	}
	l.SetFormatter(formatter)
	return &Logger{entry: log.NewEntry(l), enabled: enabled}
}

// Discard returns a logger that never writes anything.
func Discard() *Logger {
	return New(io.Discard, log.PanicLevel, None)
}

// With returns a logger carrying an extra field on every message.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), enabled: l.enabled}
}

func (l *Logger) Enabled(cat Category) bool {
	if l == nil {
		return false
	}
	if cat&Frequent != 0 && l.enabled&Frequent == 0 {
		return false
	}
	return cat&Error != 0 || l.enabled&cat&^Frequent != 0
}

// Debug writes the concatenation of args, the way fmt.Sprint does, when cat
// is enabled.
func (l *Logger) Debug(cat Category, args ...any) {
	if !l.Enabled(cat) {
		return
	}
	e := l.entry.WithField("cat", cat.String())
	if cat&Error != 0 {
		e.Warn(args...)
		return
	}
	e.Debug(args...)
}

func (l *Logger) Debugf(cat Category, format string, args ...any) {
	if !l.Enabled(cat) {
		return
	}
	l.Debug(cat, fmt.Sprintf(format, args...))
}

// Info is used by operator-facing code paths (attach, detach, CLI).
func (l *Logger) Info(args ...any) {
	if l == nil {
		return
	}
	l.entry.Info(args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.entry.Infof(format, args...)
}
