// Package api exposes the admin HTTP endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/repowatch/internal/github"
	"github.com/user/repowatch/internal/storage"
	"github.com/user/repowatch/internal/watcher"
	"github.com/user/repowatch/pkg/logger"
)

// Watchlist manages the watched repositories.
type Watchlist interface {
	List(ctx context.Context) ([]storage.WatchedRepository, error)
	Add(ctx context.Context, repoID, channelID, addedBy string, events []storage.EventCategory) (*storage.WatchedRepository, error)
	Remove(ctx context.Context, repoID string) error
	UpdateEvents(ctx context.Context, repoID string, events []storage.EventCategory) ([]storage.EventCategory, error)
}

// Cycles runs and reports poll cycles.
type Cycles interface {
	RunNow(ctx context.Context) (*watcher.CycleReport, error)
	LastReport() (*watcher.CycleReport, error)
	Next() time.Time
}

// RateLimiter reports the upstream API quota.
type RateLimiter interface {
	GetRateLimit(ctx context.Context) (*github.RateLimit, error)
}

// Options configures the router.
type Options struct {
	Watchlist  Watchlist
	Cycles     Cycles
	RateLimit  RateLimiter // optional
	AdminToken string      // empty disables authentication
	Timeout    time.Duration
}

type handler struct {
	watchlist Watchlist
	cycles    Cycles
	rateLimit RateLimiter
}

// NewRouter builds the admin router.
func NewRouter(opts Options) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	h := &handler{
		watchlist: opts.Watchlist,
		cycles:    opts.Cycles,
		rateLimit: opts.RateLimit,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(requireToken(opts.AdminToken))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.Timeout))

			r.Get("/status", h.status)
			r.Get("/repos", h.listRepos)
			r.Post("/repos", h.addRepo)
			r.Delete("/repos/{owner}/{name}", h.removeRepo)
			r.Put("/repos/{owner}/{name}/events", h.updateEvents)
		})

		// A cycle may outlast the request timeout.
		r.Post("/cycles", h.runCycle)
	})

	return r
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusResponse struct {
	LastCycle      *watcher.CycleReport `json:"last_cycle"`
	LastError      string               `json:"last_error,omitempty"`
	NextCycle      *time.Time           `json:"next_cycle,omitempty"`
	WatchedRepos   int                  `json:"watched_repos"`
	RateLimit      *github.RateLimit    `json:"rate_limit,omitempty"`
	RateLimitError string               `json:"rate_limit_error,omitempty"`
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}

	report, err := h.cycles.LastReport()
	resp.LastCycle = report
	if err != nil {
		resp.LastError = err.Error()
	}
	if next := h.cycles.Next(); !next.IsZero() {
		resp.NextCycle = &next
	}

	repos, err := h.watchlist.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.WatchedRepos = len(repos)

	if h.rateLimit != nil {
		limit, err := h.rateLimit.GetRateLimit(r.Context())
		if err != nil {
			resp.RateLimitError = err.Error()
		} else {
			resp.RateLimit = limit
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.watchlist.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if repos == nil {
		repos = []storage.WatchedRepository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

type addRepoRequest struct {
	Repo      string `json:"repo"`
	ChannelID string `json:"channelId"`
	Events    string `json:"events"` // comma separated, empty for defaults
	AddedBy   string `json:"addedBy"`
}

func (h *handler) addRepo(w http.ResponseWriter, r *http.Request) {
	var req addRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var events []storage.EventCategory
	if strings.TrimSpace(req.Events) != "" {
		parsed, err := storage.ParseEvents(req.Events)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		events = parsed
	}
	if req.AddedBy == "" {
		req.AddedBy = "api"
	}

	repo, err := h.watchlist.Add(r.Context(), strings.TrimSpace(req.Repo), req.ChannelID, req.AddedBy, events)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	logger.Info().Str("repo", repo.RepoID).Str("channel_id", repo.ChannelID).Msg("Repository added to watch list")
	writeJSON(w, http.StatusCreated, repo)
}

func (h *handler) removeRepo(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	if err := h.watchlist.Remove(r.Context(), repoID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	logger.Info().Str("repo", repoID).Msg("Repository removed from watch list")
	w.WriteHeader(http.StatusNoContent)
}

type updateEventsRequest struct {
	Events string `json:"events"`
}

type updateEventsResponse struct {
	Repo     string                  `json:"repo"`
	Previous []storage.EventCategory `json:"previous"`
	Current  []storage.EventCategory `json:"current"`
}

func (h *handler) updateEvents(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	var req updateEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	events, err := storage.ParseEvents(req.Events)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	previous, err := h.watchlist.UpdateEvents(r.Context(), repoID, events)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updateEventsResponse{Repo: repoID, Previous: previous, Current: events})
}

func (h *handler) runCycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.cycles.RunNow(r.Context())
	switch {
	case errors.Is(err, watcher.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrInvalidRepoID),
		errors.Is(err, storage.ErrInvalidEvents),
		errors.Is(err, storage.ErrNoEvents),
		errors.Is(err, storage.ErrNoChannel):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRepoNotFound),
		errors.Is(err, storage.ErrNotWatched):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyWatched):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
