// Package api exposes the oracle's HTTP surface: synchronous execution
// triggers for browser clients plus health and status endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/logger"
	"github.com/tasoskalogero/blackboxchain/internal/result"
	"github.com/tasoskalogero/blackboxchain/internal/settle"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 1 << 20 // 1 MB

	// statusSuccess and statusFailure tag the two-element responses of
	// the exec endpoints. The create endpoint shouts, the run endpoint
	// does not; browser clients match on the exact strings.
	statusSuccess = "SUCCESS"
	statusFailure = "FAILURE"

	runSuccess = "Success"
	runFailure = "Failure"
)

// ExecCreator creates executions inside a sandbox.
type ExecCreator interface {
	CreateExec(ctx context.Context, unit, dataset, software, pubKey string) (string, error)
}

// ExecSettler runs a created execution and settles its payment.
type ExecSettler interface {
	SettleExec(ctx context.Context, execID, paymentID string) (*settle.Disposition, error)
}

// DatasetReader resolves dataset descriptors from the ledger.
type DatasetReader interface {
	Dataset(ctx context.Context, id string) (*ledger.ResourceDescriptor, error)
}

// StatusProvider exposes settlement progress for monitoring.
type StatusProvider interface {
	Cursor(stream string) (uint64, error)
	Counts() (committed, reverted uint64, err error)
}

// Server is the oracle's HTTP server.
type Server struct {
	addr    string         // addr is the HTTP listen address
	creator ExecCreator    // creator starts sandbox executions
	settler ExecSettler    // settler drives the run-and-settle path
	ledger  DatasetReader  // ledger resolves dataset references
	status  StatusProvider // status reports settlement progress
	backend string         // backend names the runtime in /status
	server  *http.Server   // server is the underlying HTTP server
}

// New creates a new HTTP server.
func New(addr string, creator ExecCreator, settler ExecSettler, lc DatasetReader, status StatusProvider, backend string) *Server {
	return &Server{
		addr:    addr,
		creator: creator,
		settler: settler,
		ledger:  lc,
		status:  status,
		backend: backend,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /exec/create", s.handleCreateExec)
	mux.HandleFunc("POST /exec/run", s.handleRunExec)
	mux.HandleFunc("OPTIONS /exec/create", s.handlePreflight)
	mux.HandleFunc("OPTIONS /exec/run", s.handlePreflight)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // run requests wait for the computation
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// createRequest is the body of POST /exec/create.
type createRequest struct {
	ContainerID string `json:"containerID"` // ContainerID names the execution unit
	SwHash      string `json:"swHash"`      // SwHash locates the software artifact
	DatasetRef  string `json:"datasetRef"`  // DatasetRef names the dataset on the ledger
	PubUserKey  string `json:"pubUserKey"`  // PubUserKey encrypts the result for the requester
}

// handleCreateExec handles POST /exec/create requests. The dataset
// reference is resolved before the runtime is touched so a bad reference
// fails fast with its own error message.
func (s *Server) handleCreateExec(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)

	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writePair(w, http.StatusBadRequest, statusFailure, "invalid request body")
		return
	}

	dataset, err := s.ledger.Dataset(r.Context(), req.DatasetRef)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writePair(w, http.StatusOK, statusFailure, result.ErrorMessage(result.CodeDatasetNotFound))
			return
		}

		logger.Warn("dataset lookup failed", "dataset", req.DatasetRef, "error", err)
		writePair(w, http.StatusBadGateway, statusFailure, "ledger unavailable")

		return
	}

	handle, err := s.creator.CreateExec(r.Context(), req.ContainerID, dataset.Location, req.SwHash, req.PubUserKey)
	if err != nil {
		logger.Warn("create exec failed", "unit", req.ContainerID, "error", err)
		writePair(w, http.StatusOK, statusFailure, err.Error())

		return
	}

	logger.Info("exec created", "unit", req.ContainerID, "handle", handle)
	writePair(w, http.StatusOK, statusSuccess, handle)
}

// runRequest is the body of POST /exec/run.
type runRequest struct {
	ExecID    string `json:"execID"`    // ExecID is the handle from /exec/create
	PaymentID string `json:"paymentID"` // PaymentID is the escrow to settle against
}

// handleRunExec handles POST /exec/run requests. The response is only
// written once the computation has settled.
func (s *Server) handleRunExec(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)

	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writePair(w, http.StatusBadRequest, runFailure, "invalid request body")
		return
	}

	// A client disconnect must not cancel a started execution; the
	// settlement runs to a terminal disposition on its own timeouts.
	ctx := context.WithoutCancel(r.Context())

	d, err := s.settler.SettleExec(ctx, req.ExecID, req.PaymentID)
	if err != nil {
		logger.Error("exec settlement unresolved", "payment", req.PaymentID, "error", err)
		writePair(w, http.StatusBadGateway, runFailure, "settlement unresolved, retry later")

		return
	}

	if !d.Committed {
		writePair(w, http.StatusOK, runFailure, d.Reason)
		return
	}

	writePair(w, http.StatusOK, runSuccess, d.Reference)
}

// handlePreflight handles CORS preflight requests for the exec endpoints.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "status not available"})
		return
	}

	cursor, err := s.status.Cursor("computations")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	committed, reverted, err := s.status.Counts()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cursor":    cursor,
		"committed": committed,
		"reverted":  reverted,
		"backend":   s.backend,
	})
}

// decodeBody decodes a bounded JSON request body.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

// allowCORS sets permissive CORS headers for browser clients.
func allowCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writePair writes the two-element [status, payload] response used by
// the exec endpoints.
func writePair(w http.ResponseWriter, status int, tag, payload string) {
	writeJSON(w, status, [2]string{tag, payload})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
