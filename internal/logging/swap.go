package logging

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
)

// handlerSlot holds the handler chain of one module. Initialize stores a
// new chain; loggers already handed out pick it up on their next record.
type handlerSlot struct {
	current atomic.Pointer[slog.Handler]
}

func newHandlerSlot(h slog.Handler) *handlerSlot {
	s := &handlerSlot{}
	s.store(h)
	return s
}

func (s *handlerSlot) store(h slog.Handler) {
	s.current.Store(&h)
}

// swapHandler forwards to whatever handler its slot holds, replaying the
// attrs and groups added through With and WithGroup.
type swapHandler struct {
	slot *handlerSlot
	ops  []func(slog.Handler) slog.Handler

	built atomic.Pointer[builtHandler]
}

type builtHandler struct {
	from *slog.Handler
	h    slog.Handler
}

func (h *swapHandler) handler() slog.Handler {
	base := h.slot.current.Load()
	if len(h.ops) == 0 {
		return *base
	}
	if b := h.built.Load(); b != nil && b.from == base {
		return b.h
	}
	out := *base
	for _, op := range h.ops {
		out = op(out)
	}
	h.built.Store(&builtHandler{from: base, h: out})
	return out
}

func (h *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*h.slot.current.Load()).Enabled(ctx, level)
}

func (h *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler().Handle(ctx, r)
}

func (h *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

func (h *swapHandler) WithGroup(name string) slog.Handler {
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}

func (h *swapHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	return &swapHandler{slot: h.slot, ops: append(slices.Clip(h.ops), op)}
}
