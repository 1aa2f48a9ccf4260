// CLAUDE:SUMMARY HTTP bridge for dompilot — chi router mapping REST endpoints onto the Pilot facade.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/dompilot"
)

// runHTTP serves the REST bridge until ctx is cancelled. The surface mirrors
// the MCP tools one-to-one so either transport drives the same Pilot.
func runHTTP(ctx context.Context, logger *slog.Logger, pilot *dompilot.Pilot, addr string) error {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, pilot.Status(req.Context()))
	})

	r.Post("/navigate", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
			writeError(w, http.StatusBadRequest, errors.New("url is required"))
			return
		}
		res, err := pilot.Navigate(req.Context(), body.URL)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/back", func(w http.ResponseWriter, req *http.Request) {
		res, err := pilot.Back(req.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/forward", func(w http.ResponseWriter, req *http.Request) {
		res, err := pilot.Forward(req.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/reload", func(w http.ResponseWriter, req *http.Request) {
		ignoreCache := req.URL.Query().Get("ignore_cache") == "true"
		if err := pilot.Reload(req.Context(), ignoreCache); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
	})

	r.Post("/snapshot", func(w http.ResponseWriter, req *http.Request) {
		var opts dompilot.SnapshotOptions
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&opts); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		res, err := pilot.Snapshot(req.Context(), opts)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/act", func(w http.ResponseWriter, req *http.Request) {
		var action dompilot.ActionRequest
		if err := json.NewDecoder(req.Body).Decode(&action); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := pilot.Act(req.Context(), action)
		if err != nil {
			writeError(w, actionStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/screenshot", func(w http.ResponseWriter, req *http.Request) {
		var opts dompilot.ScreenshotOptions
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&opts); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		data, err := pilot.Screenshot(req.Context(), opts)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"bytes":  len(data),
			"base64": base64.StdEncoding.EncodeToString(data),
		})
	})

	r.Get("/console", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, pilot.ConsoleLogs(queryInt(req, "limit", 100)))
	})

	r.Get("/trail", func(w http.ResponseWriter, req *http.Request) {
		recs, err := pilot.Trail(req.Context(), queryInt(req, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("dompilot: http bridge starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("dompilot: http server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("dompilot: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// actionStatus maps action failures onto HTTP codes: caller mistakes are 400,
// expired refs are 409 (retake a snapshot), timeouts are 504.
func actionStatus(err error) int {
	var verr *dompilot.ValidationError
	var rerr *dompilot.RefResolutionError
	var terr *dompilot.ActionTimeoutError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &rerr):
		return http.StatusConflict
	case errors.As(err, &terr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
