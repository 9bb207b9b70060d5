package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/faqrag/internal/auth"
	"github.com/seanblong/faqrag/internal/search"
	"github.com/seanblong/faqrag/pkg/models"
)

//go:embed static/index.html
var indexHTML []byte

const (
	chatTimeout   = 60 * time.Second
	searchTimeout = 10 * time.Second
	readyTimeout  = 3 * time.Second

	// maxSearchK bounds the k parameter of /search.
	maxSearchK = 100
)

// Engine is the retrieval and answering core the handlers call into.
type Engine interface {
	Retrieve(ctx context.Context, q string, n int) ([]models.ContextItem, error)
	Answer(ctx context.Context, q string, n int) (models.Answer, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type chatRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the HTTP handler. engine must be fully ingested before the
// handler receives traffic. store may be nil, in which case /readyz always
// reports ready.
func New(engine Engine, store Pinger, guard *auth.Guard, topK int, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("store not ready")
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": guard.Enabled()})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})

	mux.HandleFunc("/api/chat", guard.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
		defer cancel()

		start := time.Now()
		ans, err := engine.Answer(ctx, req.Query, topK)
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No query provided"})
				return
			}
			hlog.FromRequest(r).Error().Err(err).Msg("answer failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, ans)

		hlog.FromRequest(r).Info().Str("path", "/api/chat").Strs("sources", ans.Sources).Dur("dur", time.Since(start)).Msg("served")
	}))

	mux.HandleFunc("/search", guard.Middleware(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query().Get("q")
		k := topK
		if v := r.URL.Query().Get("k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > maxSearchK {
				http.Error(w, fmt.Sprintf("k must be an integer between 0 and %d", maxSearchK), http.StatusBadRequest)
				return
			}
			k = n
		}
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
		defer cancel()
		items, err := engine.Retrieve(ctx, q, k)
		if err != nil {
			if errors.Is(err, search.ErrEmptyQuery) {
				http.Error(w, "missing query parameter q", http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []models.ContextItem{}
		}
		writeJSON(w, http.StatusOK, items)

		hlog.FromRequest(r).Info().Str("path", "/search").Str("q", q).Int("k", k).Dur("dur", time.Since(start)).Msg("served")
	}))

	return hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "X-Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
				hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
			})(mux),
		),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
