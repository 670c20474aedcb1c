// Package diagnostic implements the operator-facing control surface named
// in SPEC_FULL §4 ("Diagnostic command surface"): a Unix domain socket
// exposing POST /checkpoint and GET /status, built the way moby-moby's API
// server wires gorilla/mux onto a docker/go-connections/sockets listener.
package diagnostic

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/docker/go-connections/sockets"
	"github.com/gorilla/mux"

	"github.com/restorepoint/vmcr/internal/checkpoint"
	"github.com/restorepoint/vmcr/internal/log"
)

var logger = log.For("diagnostic")

type connFDKey struct{}

// connFD extracts the raw file descriptor of the accepted connection a
// request arrived on. §4.5 step 3 requires the driver to exempt this exact
// fd from validation, since it is the command channel the checkpoint was
// requested over and therefore can never be claimed by an application
// resource. Unix connections expose their fd via SyscallConn.
func connFD(c net.Conn) int {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return -1
	}
	sc, err := uc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	if ctrlErr := sc.Control(func(rawFD uintptr) { fd = int(rawFD) }); ctrlErr != nil {
		return -1
	}
	return fd
}

// Server binds the diagnostic socket and dispatches checkpoint requests
// into a Driver. It implements checkpoint.DiagnosticListener so the driver
// can abort it at the start of every attempt (§4.6 step 1).
type Server struct {
	driver *checkpoint.Driver

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	aborted  bool

	statusMu sync.Mutex
	status   Status
}

// Status is the payload GET /status returns: the outcome of the most
// recent attempt dispatched through this server, if any.
type Status struct {
	LastAttemptID  string `json:"last_attempt_id,omitempty"`
	LastResultCode string `json:"last_result_code,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	Attempted      bool   `json:"attempted"`
}

// Listen creates the Unix socket at path, group-owned by gid (-1 to leave
// the caller's primary group), and wires up the mux router. It does not
// start serving; call Serve to accept connections.
func Listen(path string, gid int, driver *checkpoint.Driver) (*Server, error) {
	l, err := sockets.NewUnixSocket(path, gid)
	if err != nil {
		return nil, err
	}

	s := &Server{driver: driver, listener: l}
	r := mux.NewRouter()
	r.HandleFunc("/checkpoint", s.handleCheckpoint).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.http = &http.Server{
		Handler: r,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connFDKey{}, connFD(c))
		},
	}
	return s, nil
}

// Serve blocks accepting connections until the listener is closed by Abort.
// A closed-listener error on shutdown is expected and not returned.
func (s *Server) Serve() error {
	err := s.http.Serve(s.listener)
	if err != nil && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil && isClosedListener(err) {
		return nil
	}
	return err
}

func isClosedListener(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Err.Error() == "use of closed network connection"
}

// Abort implements checkpoint.DiagnosticListener: it stops accepting new
// connections so the diagnostic socket cannot open descriptors mid-attempt
// (§4.6 step 1 "the operator-facing listener is aborted"). It is
// idempotent; a checkpoint that fails and retries may abort twice.
func (s *Server) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return nil
	}
	s.aborted = true
	return s.listener.Close()
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, req *http.Request) {
	dryRun := s.driver.Config.DryRunDefault
	if v := req.URL.Query().Get("dry_run"); v != "" {
		dryRun = v == "true"
	}

	socketFD, ok := req.Context().Value(connFDKey{}).(int)
	if !ok {
		socketFD = -1
	}

	result, err := s.driver.Checkpoint(req.Context(), checkpoint.Request{
		DryRun:             dryRun,
		DiagnosticSocketFD: socketFD,
	})

	s.statusMu.Lock()
	s.status = Status{
		LastAttemptID:  result.AttemptID,
		LastResultCode: result.Code.String(),
		Attempted:      true,
	}
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.statusMu.Unlock()

	resp := checkpointResponse{
		Code:            result.Code.String(),
		FailureMessages: result.FailureMessages,
	}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusConflict)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		logger.WithError(encErr).Warn("failed to encode checkpoint response")
	}
}

type checkpointResponse struct {
	Code            string   `json:"code"`
	Error           string   `json:"error,omitempty"`
	FailureMessages []string `json:"failure_messages,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, req *http.Request) {
	s.statusMu.Lock()
	st := s.status
	s.statusMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		logger.WithError(err).Warn("failed to encode status response")
	}
}
