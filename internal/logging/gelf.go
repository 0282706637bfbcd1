package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELF syslog severities.
const (
	gelfError   int32 = 3
	gelfWarning int32 = 4
	gelfInfo    int32 = 6
	gelfDebug   int32 = 7
)

// MessageWriter is the part of gelf.Writer the handler needs.
type MessageWriter interface {
	WriteMessage(m *gelf.Message) error
}

// GelfHandler ships records to Graylog. Attributes become GELF additional
// fields ("_" prefixed); groups are flattened with ".".
type GelfHandler struct {
	w      MessageWriter
	host   string
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewGelfWriter dials a Graylog UDP input.
func NewGelfWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("dialing graylog %s: %w", address, err)
	}
	return w, nil
}

// NewGelfHandler creates a handler writing to w. A nil level means Info.
func NewGelfHandler(w MessageWriter, level slog.Leveler) *GelfHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	host, err := os.Hostname()
	if err != nil {
		host = "captioner"
	}
	return &GelfHandler{w: w, host: host, level: level}
}

func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := map[string]any{}
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		addGelfField(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addGelfField(extra, prefix, a)
		return true
	})

	raw, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("encoding gelf fields: %w", err)
	}

	short, full := r.Message, ""
	if i := strings.IndexByte(short, '\n'); i >= 0 {
		short, full = short[:i], r.Message
	}

	m := &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    short,
		Full:     full,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    gelfLevel(r.Level),
		RawExtra: raw,
	}
	return h.w.WriteMessage(m)
}

func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	flat := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	flat = append(flat, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		flat = append(flat, a)
	}
	return &GelfHandler{w: h.w, host: h.host, level: h.level, attrs: flat, groups: h.groups}
}

func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string(nil), h.groups...), name)
	return &GelfHandler{w: h.w, host: h.host, level: h.level, attrs: h.attrs, groups: groups}
}

func addGelfField(extra map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addGelfField(extra, key, ga)
		}
		return
	}
	// "_id" is reserved by GELF
	if key == "id" {
		key = "id_"
	}
	switch a.Value.Kind() {
	case slog.KindString:
		extra["_"+key] = a.Value.String()
	case slog.KindInt64:
		extra["_"+key] = a.Value.Int64()
	case slog.KindUint64:
		extra["_"+key] = a.Value.Uint64()
	case slog.KindFloat64:
		extra["_"+key] = a.Value.Float64()
	case slog.KindBool:
		extra["_"+key] = a.Value.Bool()
	default:
		extra["_"+key] = a.Value.String()
	}
}

func gelfLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return gelfError
	case l >= slog.LevelWarn:
		return gelfWarning
	case l >= slog.LevelInfo:
		return gelfInfo
	default:
		return gelfDebug
	}
}
