package logging

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry.
const SyslogIdentifier = "v4l2cast"

// JournalHandler writes records to the systemd journal as structured
// fields. Attribute keys become upper-case field names with groups joined
// by underscores, so session_id is queryable as SESSION_ID=.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string
	groups []string
}

// NewJournalHandler creates a journal handler for records at or above level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:  level,
		fields: map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier},
	}
}

// IsJournalAvailable reports whether the journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := maps.Clone(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		addAttrToFields(fields, a, h.groups)
		return true
	})
	return journal.Send(r.Message, mapLevelToPriority(r.Level), fields)
}

// WithAttrs resolves attrs into fields once instead of on every record.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := maps.Clone(h.fields)
	for _, a := range attrs {
		addAttrToFields(fields, a, h.groups)
	}
	return &JournalHandler{level: h.level, fields: fields, groups: h.groups}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, groups: append(slices.Clip(h.groups), name)}
}

func mapLevelToPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addAttrToFields(fields map[string]string, a slog.Attr, groups []string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clip(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			addAttrToFields(fields, ga, inner)
		}
		return
	}

	key := journalKey(append(slices.Clip(groups), a.Key))
	if key == "" {
		return
	}

	v := a.Value
	switch v.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		fields[key] = v.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = v.String()
	}
}

// journalKey builds a field name journald accepts: upper-case letters,
// digits and underscores, not starting with an underscore.
func journalKey(parts []string) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('_')
		}
		for _, c := range strings.ToUpper(p) {
			switch {
			case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
				sb.WriteRune(c)
			default:
				sb.WriteByte('_')
			}
		}
	}
	return strings.TrimLeft(sb.String(), "_0123456789")
}
