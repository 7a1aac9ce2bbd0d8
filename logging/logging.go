/*package logging provides the slog handler used by tgem's executables. Each
record is written on one line as a bracketed timestamp, the bracketed values
of its attributes, and the message:

	[2026/01/02 15:04:05] [INFO] [avalanche] finished run 3
*/
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Handler is a slog.Handler which writes compact bracketed lines.
type Handler struct {
	level slog.Leveler
	attrs []slog.Attr
	group string
	mu    *sync.Mutex
	out   io.Writer
}

// NewHandler creates a handler writing to out. A nil opts logs at
// slog.LevelInfo.
func NewHandler(out io.Writer, opts *slog.HandlerOptions) *Handler {
	level := slog.Leveler(slog.LevelInfo)
	if opts != nil && opts.Level != nil { level = opts.Level }
	return &Handler{level: level, mu: &sync.Mutex{}, out: out}
}

// New returns a logger using a Handler.
func New(out io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(out, &slog.HandlerOptions{Level: level}))
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, h.qualify(a))
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" { return h }
	h2 := *h
	if h.group == "" {
		h2.group = name
	} else {
		h2.group = h.group + "." + name
	}
	return &h2
}

func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" { a.Key = h.group + "." + a.Key }
	return a
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	strs := []string{
		r.Time.Format("[2006/01/02 15:04:05]"),
		fmt.Sprintf("[%s]", r.Level.String()),
	}
	for _, a := range h.attrs {
		strs = appendAttr(strs, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		strs = appendAttr(strs, h.qualify(a))
		return true
	})
	strs = append(strs, r.Message)

	b := []byte(strings.Join(strs, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(b)
	return err
}

func appendAttr(strs []string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) { return strs }
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			strs = appendAttr(strs, ga)
		}
		return strs
	}
	return append(strs, fmt.Sprintf("[%s]", a.Value.String()))
}
