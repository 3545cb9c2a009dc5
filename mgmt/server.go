// Package mgmt provides the management server: a side-channel HTTP endpoint
// exposing prometheus metrics, the current address book, and a throttled
// peer-registration endpoint, the RPC-transport analogue of
// app/mgmt/server.go's routes/metrics server.
package mgmt

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registrar is the subset of addrbook.Book the management server needs to
// admit and resolve a peer registered over HTTP.
type Registrar interface {
	Peers() []string
	AddPeer(name, addr string)
	ResolveOne(ctx context.Context, name string) error
}

// Server is the management HTTP server.
type Server struct {
	Listen    string
	Version   string
	Book      Registrar
	Metrics   *Metrics
	RateLimit float64 // registrations/sec allowed; 0 or less uses the default of 5
	Burst     int     // limiter burst; 0 or less uses the default of 10
}

// Run starts the management server and blocks until ctx is canceled, the
// same listen-then-Shutdown-on-ctx.Done shape app/mgmt/server.go's Run uses.
func (s *Server) Run(ctx context.Context) error {
	log.Printf("[INFO] start management server on %s", s.Listen)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/peers", s.peersCtrl())

	limit := s.RateLimit
	if limit <= 0 {
		limit = 5
	}
	burst := s.Burst
	if burst <= 0 {
		burst = 10
	}
	registerLimiter := newRegistrationLimiter(limit, burst)
	mux.HandleFunc("/peers/register", throttle(registerLimiter, s.registerCtrl()))

	h := rest.Wrap(mux,
		rest.Recoverer(log.Default()),
		rest.AppInfo("mercuryd-mgmt", "mercury-hpc", s.Version),
		rest.Ping,
		handlers.CompressHandler,
	)

	httpServer := http.Server{
		Addr:              s.Listen,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			log.Printf("[WARN] mgmt server shutdown: %v", err)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// peersCtrl - GET /peers, returns the configured peer names.
func (s *Server) peersCtrl() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest.RenderJSON(w, map[string][]string{"peers": s.Book.Peers()})
	}
}

// registrationRequest is the POST /peers/register body: a peer a caller
// wants admitted to the address book right away, outside the static YAML
// list and the periodic re-resolution tick.
type registrationRequest struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// registerCtrl - POST /peers/register, admits and resolves a new peer.
func (s *Server) registerCtrl() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.Addr == "" {
			http.Error(w, "name and addr are required", http.StatusBadRequest)
			return
		}

		s.Book.AddPeer(req.Name, req.Addr)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.Book.ResolveOne(ctx, req.Name); err != nil {
			log.Printf("[WARN] mgmt: register %s (%s): resolve failed: %v", req.Name, req.Addr, err)
			http.Error(w, "peer added but resolution failed: "+err.Error(), http.StatusAccepted)
			return
		}

		if s.Metrics != nil {
			s.Metrics.SetPeerCount(len(s.Book.Peers()))
		}
		w.WriteHeader(http.StatusCreated)
	}
}
