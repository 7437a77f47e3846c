package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/smazurov/v4l2cast/internal/logging"
)

// RequestIDHeader carries the request ID. A client-supplied value is kept.
const RequestIDHeader = "X-Request-ID"

// corsHeaders allow any origin. The API is read-mostly and has no credentials.
var corsHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type, Accept, Origin, " + RequestIDHeader},
	{"Access-Control-Expose-Headers", RequestIDHeader},
	{"Access-Control-Max-Age", "86400"},
}

// addPreflightHandler answers OPTIONS on the mux, which huma never routes.
func addPreflightHandler(mux *http.ServeMux) {
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		for _, h := range corsHeaders {
			w.Header().Set(h[0], h[1])
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// corsMiddleware sets the CORS headers on every huma response.
func corsMiddleware(ctx huma.Context, next func(huma.Context)) {
	for _, h := range corsHeaders {
		ctx.SetHeader(h[0], h[1])
	}
	next(ctx)
}

// HTTPLoggingMiddleware tags each request with an ID and logs it once it
// completes. Health checks log at debug, 4xx at warn and 5xx at error.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()

	id := ctx.Header(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx.SetHeader(RequestIDHeader, id)

	next(ctx)

	status := ctx.Status()
	path := ctx.URL().Path
	attrs := []slog.Attr{
		slog.String("request_id", id),
		slog.String("method", ctx.Method()),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if q := ctx.URL().RawQuery; q != "" {
		attrs = append(attrs, slog.String("query", q))
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case path == "/api/health":
		level = slog.LevelDebug
	}
	logging.GetLogger("http").LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
