package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/store"
	"github.com/snow-ghost/dilemma/worker/light"
)

// RunFunc plays one tournament.
type RunFunc func(context.Context, light.Request) (*store.Tournament, error)

// Ingestor is an in-memory tournament queue with an HTTP endpoint for
// submissions. Queued requests are played in order by Start.
type Ingestor struct {
	mu     sync.Mutex
	queue  []light.Request
	run    RunFunc
	notify chan struct{}
	logger *logging.Logger
}

func NewIngestor(run RunFunc, logger *logging.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{
		run:    run,
		queue:  make([]light.Request, 0),
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

// Enqueue queues req and returns its tournament ID.
func (i *Ingestor) Enqueue(req light.Request) string {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	i.mu.Lock()
	i.queue = append(i.queue, req)
	i.mu.Unlock()

	select {
	case i.notify <- struct{}{}:
	default:
	}
	return req.ID
}

func (i *Ingestor) Dequeue() (light.Request, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.queue) == 0 {
		return light.Request{}, false
	}
	req := i.queue[0]
	i.queue = i.queue[1:]
	return req, true
}

func (i *Ingestor) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queue)
}

// Drain plays every queued request and returns how many succeeded. Failed
// tournaments are logged and skipped.
func (i *Ingestor) Drain(ctx context.Context) int {
	done := 0
	for ctx.Err() == nil {
		req, ok := i.Dequeue()
		if !ok {
			break
		}
		if _, err := i.run(ctx, req); err != nil {
			i.logger.Error("Queued tournament failed", "tournament_id", req.ID, "error", err)
			continue
		}
		done++
	}
	return done
}

// Start drains the queue whenever something is enqueued, until ctx ends.
func (i *Ingestor) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.notify:
			i.Drain(ctx)
		}
	}
}

// ServeHTTP handles POST with a JSON tournament request. With ?async=true
// the request is queued and 202 returned with its ID; otherwise the
// tournament is played and its record returned.
func (i *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req light.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("async") == "true" {
		id := i.Enqueue(req)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "queued": i.Len()})
		return
	}

	res, err := i.run(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, light.ErrInvalid) {
			status = http.StatusBadRequest
		}
		w.Header().Del("Content-Type")
		http.Error(w, err.Error(), status)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}
