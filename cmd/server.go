package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/orchestrator"
	"github.com/sells-group/profile-enricher/internal/usage"
)

// scrapeBody is the POST /scrape payload.
type scrapeBody struct {
	URL     string         `json:"url"`
	Options map[string]any `json:"options,omitempty"`
	// Timeout is a Go duration string such as "20s".
	Timeout string `json:"timeout,omitempty"`
}

// newRouter builds the HTTP API over a.
func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := a.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/scrape", handleScrape(a))
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.orch.Status())
	})
	r.Delete("/cache", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"cleared": a.orch.ClearCache()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Route("/usage", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, a.tracker.Summary())
		})
		r.Get("/dashboard", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, a.tracker.Dashboard())
		})
		r.Get("/forecast", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, a.tracker.Forecast())
		})
		r.Get("/alerts", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, a.tracker.Alerts())
		})
		r.Get("/history", handleHistory(a))
		r.Get("/export", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Disposition", `attachment; filename="usage-export.json"`)
			if err := a.tracker.ExportJSON(w); err != nil {
				zap.L().Warn("usage export failed", zap.Error(err))
			}
		})
		r.Post("/reset", handleReset(a))
	})

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			target := req.URL.Query().Get("url")
			if target == "" {
				target = "https://example.com/"
			}
			writeJSON(w, http.StatusOK, a.orch.SelectProviders(target))
		})
		r.Post("/{name}/enable", func(w http.ResponseWriter, req *http.Request) {
			adminResult(w, chi.URLParam(req, "name"), a.orch.Enable(chi.URLParam(req, "name")))
		})
		r.Post("/{name}/disable", func(w http.ResponseWriter, req *http.Request) {
			adminResult(w, chi.URLParam(req, "name"), a.orch.Disable(chi.URLParam(req, "name")))
		})
		r.Put("/{name}/priority", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Priority int `json:"priority"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			name := chi.URLParam(req, "name")
			adminResult(w, name, a.orch.SetPriority(name, body.Priority))
		})
		r.Put("/{name}/rate-limit", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				RateLimit int `json:"rate_limit"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			name := chi.URLParam(req, "name")
			adminResult(w, name, a.orch.SetRateLimit(name, body.RateLimit))
		})
	})

	return r
}

func handleScrape(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body scrapeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req := model.ScrapeRequest{URL: body.URL, Options: body.Options}
		if body.Timeout != "" {
			d, err := time.ParseDuration(body.Timeout)
			if err != nil || d < 0 {
				writeError(w, http.StatusBadRequest, "invalid timeout")
				return
			}
			req.Timeout = d
		}

		resp, err := a.orch.Scrape(r.Context(), req, nil)
		writeJSON(w, scrapeStatus(resp, err), resp)
	}
}

// scrapeStatus maps a scrape outcome to an HTTP status.
func scrapeStatus(resp *model.ScrapeResponse, err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, orchestrator.ErrNoApplicableProvider):
		return http.StatusUnprocessableEntity
	case err != nil:
		return http.StatusBadRequest
	case resp.Success:
		return http.StatusOK
	case resp.Metadata.BudgetExceeded:
		return http.StatusPaymentRequired
	case resp.Error != nil && (resp.Error.Kind == model.KindRateLimit || resp.Error.Kind == model.KindQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func handleHistory(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := usage.HistoryFilter{
			Provider:    q.Get("provider"),
			SuccessOnly: q.Get("outcome") == "success",
			FailureOnly: q.Get("outcome") == "failure",
		}
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			f.Limit = n
		}
		if s := q.Get("since"); s != "" {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid since: want RFC 3339")
				return
			}
			f.Since = ts
		}
		writeJSON(w, http.StatusOK, a.tracker.History(f))
	}
}

func handleReset(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var windows []usage.Window
		for _, s := range r.URL.Query()["window"] {
			win, err := usage.ParseWindow(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			windows = append(windows, win)
		}
		if err := a.tracker.Reset(windows...); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.tracker.Summary())
	}
}

func adminResult(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": name})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
