package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/provider"
	"github.com/scentdesk/fragrance-cli/internal/resolver"
)

// newRouter builds the versioned HTTP API. User identity arrives via the
// X-User-ID header; localized error text follows Accept-Language.
func newRouter(env *resolverEnv, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept-Language", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/complete", handleComplete(env))
		r.Post("/complete/batch", handleBatchComplete(env))
		r.Post("/normalize", handleNormalize(env))
		r.Post("/normalize/batch", handleBatchNormalize(env))
		r.Post("/notes", handleNotes(env))
		r.Post("/attributes", handleAttributes(env))
		r.Post("/feedback", handleFeedback(env))
		r.Get("/providers", handleProviders(env))
		r.Get("/health", handleHealth(env))
		r.Get("/usage/{userID}", handleUsage(env))
	})

	return r
}

// batchPayload wraps batch items so the request shape can grow without
// breaking clients.
type batchPayload[T any] struct {
	Items []T `json:"items"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a pipeline error to its stable {code, message} body. The
// underlying error is logged; raw upstream payloads never reach clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := resolver.Classify(err)
	status := resolver.HTTPStatus(code)
	msg := resolver.Message(code, r.Header.Get("Accept-Language"))

	zap.L().Warn("request failed",
		zap.String("path", r.URL.Path),
		zap.String("code", string(code)),
		zap.Error(err),
	)

	writeJSON(w, status, map[string]string{
		"code":    string(code),
		"message": msg,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, eris.Wrap(resolver.ErrInvalidArgument, "serve: decode request body"))
		return false
	}
	return true
}

func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func handleComplete(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolver.CompleteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.UserID = userID(r)

		resp, err := env.Resolver.Complete(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleBatchComplete(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload batchPayload[resolver.CompleteRequest]
		if !decodeBody(w, r, &payload) {
			return
		}
		uid := userID(r)
		for i := range payload.Items {
			payload.Items[i].UserID = uid
		}

		resp, err := env.Resolver.BatchComplete(r.Context(), payload.Items)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleNormalize(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolver.NormalizeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.UserID = userID(r)

		resp, err := env.Resolver.Normalize(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleBatchNormalize(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload batchPayload[resolver.NormalizeRequest]
		if !decodeBody(w, r, &payload) {
			return
		}
		uid := userID(r)
		for i := range payload.Items {
			payload.Items[i].UserID = uid
		}

		resp, err := env.Resolver.BatchNormalize(r.Context(), payload.Items)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleNotes(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolver.NotesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.UserID = userID(r)

		resp, err := env.Resolver.SuggestNotes(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAttributes(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolver.AttributesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.UserID = userID(r)

		resp, err := env.Resolver.SuggestAttributes(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleFeedback(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev model.FeedbackEvent
		if !decodeBody(w, r, &ev) {
			return
		}
		if ev.UserID == "" {
			ev.UserID = userID(r)
		}

		created, err := env.Resolver.RecordFeedback(r.Context(), ev)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleProviders(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": env.Resolver.ListProviders()})
	}
}

func handleHealth(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		only := provider.ID(r.URL.Query().Get("provider"))
		report := env.Resolver.HealthCheck(r.Context(), only)
		status := http.StatusOK
		if report.Status == "critical" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func handleUsage(env *resolverEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "userID")

		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 365 {
				writeError(w, r, eris.Wrap(resolver.ErrInvalidArgument, "serve: days must be 1-365"))
				return
			}
			days = n
		}

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -days)
		summary, err := env.Ledger.Summary(r.Context(), uid, from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
