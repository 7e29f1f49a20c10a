package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/patrol/pkg/engine"
	"github.com/entrhq/patrol/pkg/report"
	"github.com/entrhq/patrol/pkg/suite"
)

const (
	maxSubmitBytes    = 1 << 20
	heartbeatInterval = 30 * time.Second
)

// submitRequest is the JSON envelope for POST /api/v1/executions. Suite
// holds the YAML suite document verbatim; posting the YAML directly with a
// non-JSON content type works too, with default options.
type submitRequest struct {
	Suite   string        `json:"suite"`
	Options submitOptions `json:"options"`
}

// submitOptions mirrors engine.Options with timeouts in seconds.
type submitOptions struct {
	Mode            string `json:"mode,omitempty"`
	FailFast        *bool  `json:"fail_fast,omitempty"`
	GlobalTimeout   int    `json:"global_timeout,omitempty"`
	ScenarioTimeout int    `json:"scenario_timeout,omitempty"`
}

func (o submitOptions) engineOptions() (engine.Options, error) {
	opts := engine.Options{FailFast: o.FailFast}
	if o.Mode != "" {
		mode := engine.Mode(o.Mode)
		if !mode.Valid() {
			return engine.Options{}, fmt.Errorf("mode %q is not one of %s, %s", o.Mode, engine.ModeSequential, engine.ModeParallel)
		}
		opts.Mode = mode
	}
	if o.GlobalTimeout < 0 {
		return engine.Options{}, fmt.Errorf("global_timeout must not be negative, got %d", o.GlobalTimeout)
	}
	if o.ScenarioTimeout < 0 {
		return engine.Options{}, fmt.Errorf("scenario_timeout must not be negative, got %d", o.ScenarioTimeout)
	}
	opts.GlobalTimeout = time.Duration(o.GlobalTimeout) * time.Second
	opts.ScenarioTimeout = time.Duration(o.ScenarioTimeout) * time.Second
	return opts, nil
}

func (s *Server) handleSubmitExecution(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	raw := body
	var opts engine.Options
	if isJSONRequest(r) {
		var req submitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request envelope: %w", err))
			return
		}
		if strings.TrimSpace(req.Suite) == "" {
			respondError(w, http.StatusBadRequest, errors.New("envelope field suite is required"))
			return
		}
		raw = []byte(req.Suite)
		if opts, err = req.Options.engineOptions(); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
	}

	st, err := suite.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.engine.Submit(r.Context(), st, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrEngineClosed) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": string(engine.StatusPending),
	})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"executions": s.engine.List(),
	})
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Status(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusForLookup(err), err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleExecutionReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.Report(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusForLookup(err), err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	switch format {
	case "json":
		data, err := report.RenderJSON(rep)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, report.RenderMarkdown(rep))
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, report.RenderText(rep))
	default:
		respondError(w, http.StatusBadRequest, fmt.Errorf("unknown report format %q, supported formats: json, markdown, text", format))
	}
}

// handleExecutionEvents streams progress events as SSE data lines from the
// subscription point until the terminal event. Comment-line heartbeats keep
// idle proxies from cutting the connection.
func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	events, cancel, err := s.engine.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, statusForLookup(err), err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusForLookup(err error) int {
	if errors.Is(err, engine.ErrExecutionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct) == "application/json"
}

// errorResponse is the JSON error body. The scenario/field/reason triple is
// present when a suite document failed validation.
type errorResponse struct {
	Error    string `json:"error"`
	Status   int    `json:"status"`
	Scenario string `json:"scenario,omitempty"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Status: status, Error: http.StatusText(status)}
	if err != nil {
		resp.Error = err.Error()
	}
	var verr *suite.ValidationError
	if errors.As(err, &verr) {
		resp.Scenario = verr.Scenario
		resp.Field = verr.Field
		resp.Reason = verr.Reason
	}
	respondJSON(w, status, resp)
}
