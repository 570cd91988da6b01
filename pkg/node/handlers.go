package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrdht/pkg/txn"
)

// MaxValueSize bounds request bodies so a value fits one datagram.
const MaxValueSize = 32 << 10

// Backend is what the HTTP API drives; Runner implements it.
type Backend interface {
	Do(ctx context.Context, op txn.Op, key, value string) (txn.Outcome, error)
	Status(ctx context.Context) (Status, error)
}

// API serves the client operations of one node over HTTP.
type API struct {
	b       Backend
	timeout time.Duration
	log     *zap.Logger
}

// NewAPI returns an API whose operations give up after timeout.
func NewAPI(b Backend, timeout time.Duration, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{b: b, timeout: timeout, log: log.Named("http")}
}

// Healthz returns 200 OK to indicate the node is alive.
func (a *API) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes a JSON payload with the process ID, current time, and the node status.
func (a *API) Info(w http.ResponseWriter, req *http.Request) {
	type resp struct {
		PID  int       `json:"pid"`
		Now  time.Time `json:"now"`
		Node Status    `json:"node"`
	}
	ctx, cancel := context.WithTimeout(req.Context(), a.timeout)
	defer cancel()
	st, err := a.b.Status(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	data, _ := json.Marshal(resp{PID: os.Getpid(), Now: time.Now(), Node: st})
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// KV dispatches /kv/{key} by method: POST creates, GET reads, PUT updates
// and DELETE deletes.
func (a *API) KV(w http.ResponseWriter, req *http.Request) {
	key, ok := keyFromPath(req.URL.Path)
	if !ok {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	var op txn.Op
	switch req.Method {
	case http.MethodPost:
		op = txn.OpCreate
	case http.MethodGet:
		op = txn.OpRead
	case http.MethodPut:
		op = txn.OpUpdate
	case http.MethodDelete:
		op = txn.OpDelete
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var value string
	if op == txn.OpCreate || op == txn.OpUpdate {
		body, err := io.ReadAll(io.LimitReader(req.Body, MaxValueSize+1))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > MaxValueSize {
			http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
			return
		}
		value = string(body)
	}

	ctx, cancel := context.WithTimeout(req.Context(), a.timeout)
	defer cancel()
	o, err := a.b.Do(ctx, op, key, value)
	if err != nil {
		a.log.Debug("operation not completed", zap.Stringer("op", op), zap.String("key", key), zap.Error(err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	if !o.Success {
		a.log.Debug("operation failed", zap.Stringer("op", op), zap.String("key", key), zap.Stringer("reason", o.Reason))
		http.Error(w, o.Op.String()+" failed: "+o.Reason.String(), statusForOutcome(o))
		return
	}

	switch op {
	case txn.OpCreate:
		w.WriteHeader(http.StatusCreated)
	case txn.OpRead:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(o.Value))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Routes registers the API on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", a.Healthz)
	mux.HandleFunc("/info", a.Info)
	mux.HandleFunc("/kv/", a.KV)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrEmptyValue), errors.Is(err, ErrInvalidOp):
		return http.StatusBadRequest
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
