// Package logging wires the proxy's human-readable diagnostics. It is
// adapted from the teacher's comm.NewSlogHandler (comm/slog_handler.go):
// same level mapping and attr-flattening, but rendered straight to stderr
// with fatih/color instead of routed through a CLI's JSON/plain split —
// this is a daemon, it has no interactive client to switch modes for.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	infoColor  = color.New(color.FgCyan)
	debugColor = color.New(color.FgHiBlack)
)

// New returns a slog.Handler writing to stderr, colorized unless
// color.NoColor is set; fatih/color sets it from its own isatty probe,
// which checks stdout, not stderr.
func New(level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &handler{level: level}
}

// Init installs New as the default slog logger for the process.
func Init(level slog.Leveler) {
	slog.SetDefault(slog.New(New(level)))
}

type handler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*handler)(nil)

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", r.Time.Format("15:04:05.000"), r.Message)

	for _, attr := range h.attrs {
		appendAttr(&sb, h.groups, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		appendAttr(&sb, h.groups, attr)
		return true
	})

	line := sb.String()
	switch {
	case r.Level >= slog.LevelError:
		fmt.Fprintln(os.Stderr, errorColor.Sprintf("ERR  %s", line))
	case r.Level >= slog.LevelWarn:
		fmt.Fprintln(os.Stderr, warnColor.Sprintf("WARN %s", line))
	case r.Level >= slog.LevelInfo:
		fmt.Fprintln(os.Stderr, infoColor.Sprintf("INFO %s", line))
	default:
		fmt.Fprintln(os.Stderr, debugColor.Sprintf("DBUG %s", line))
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &handler{level: h.level, groups: append([]string{}, h.groups...), attrs: append([]slog.Attr{}, h.attrs...)}
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := &handler{level: h.level, groups: append([]string{}, h.groups...), attrs: append([]slog.Attr{}, h.attrs...)}
	nh.groups = append(nh.groups, name)
	return nh
}

func appendAttr(sb *strings.Builder, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		nextGroups := append([]string{}, groups...)
		if attr.Key != "" {
			nextGroups = append(nextGroups, attr.Key)
		}
		for _, child := range attr.Value.Group() {
			appendAttr(sb, nextGroups, child)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	keyParts := append(append([]string{}, groups...), attr.Key)
	fmt.Fprintf(sb, " %s=%s", strings.Join(keyParts, "."), formatValue(attr.Value))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}
