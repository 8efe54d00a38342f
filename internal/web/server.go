// Package web provides an HTTP status server for the keypad-sensor daemon.
package web

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/keypad-sensor/internal/remote"
	"github.com/sweeney/keypad-sensor/internal/status"
)

// maxCommandBytes bounds a POST /command body.
const maxCommandBytes = 64

// Commander applies a remote key command payload.
type Commander interface {
	Handle(payload []byte) (remote.Command, error)
}

// Server serves daemon status over HTTP and accepts key commands.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commander  Commander
}

// New creates a Server that reads state from the given tracker.
// If commander is nil, POST /command is not served.
func New(addr string, tracker *status.Tracker, commander Commander) *Server {
	s := &Server{tracker: tracker, commander: commander}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleJSON)
	mux.HandleFunc("/index.json", s.handleJSON)
	if commander != nil {
		mux.HandleFunc("/command", s.handleCommand)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.json" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxCommandBytes {
		http.Error(w, "command too long", http.StatusRequestEntityTooLarge)
		return
	}

	cmd, err := s.commander.Handle(body)
	if err != nil {
		log.Printf("web: command %q rejected: %v", body, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("web: command %s %q", cmd.Verb, cmd.Key)
	w.WriteHeader(http.StatusNoContent)
}
