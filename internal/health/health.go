// Package health serves the daemon's liveness and readiness probes.
//
// Liveness (/healthz) only proves the process answers HTTP. Readiness
// (/readyz) additionally proves the transcription dependencies work: the
// ffmpeg binary can be spawned and the recognition backend answers. A node
// with a wedged backend keeps reporting alive but stops reporting ready, so
// a load balancer drains uploads away from it without killing jobs already
// running.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds each readiness check. The ffmpeg probe spawns a
// process and the backend probe does a network round trip; neither should
// take anywhere near this long when healthy.
const checkTimeout = 5 * time.Second

// Checker is one named readiness dependency. Check returns nil when the
// dependency is usable and an error describing what is broken otherwise; it
// must respect ctx so a hung dependency cannot hang the probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler answers both probe routes. The checker set is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler over the given checkers.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// probeResponse is the JSON body for both probes: a top-level verdict plus
// the per-dependency outcomes ("ok" or "fail: <reason>").
type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz always answers 200. Being able to produce this response is the
// whole check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{Status: "ok"})
}

// Readyz answers 200 only when every dependency passes, 503 otherwise. The
// checks run concurrently so the probe latency is the slowest dependency,
// not the sum of all of them.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		err  error
	}
	outcomes := make([]outcome, len(h.checkers))

	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			outcomes[i] = outcome{name: c.Name, err: c.Check(ctx)}
		}()
	}
	wg.Wait()

	resp := probeResponse{
		Status: "ok",
		Checks: make(map[string]string, len(outcomes)),
	}
	status := http.StatusOK
	for _, o := range outcomes {
		if o.err != nil {
			resp.Checks[o.name] = "fail: " + o.err.Error()
			resp.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks[o.name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
