// Package server exposes the message router over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/router"
)

// maxBodyBytes bounds a single message body.
const maxBodyBytes = 8 << 20

// Dispatcher handles one message.
type Dispatcher interface {
	Handle(ctx context.Context, msg router.Message) router.Reply
}

// Server is the lens HTTP front end.
type Server struct {
	listen string
	disp   Dispatcher
	mux    chi.Router
	log    zerolog.Logger
}

// New creates a Server that will listen on addr.
func New(addr string, d Dispatcher) *Server {
	s := &Server{
		listen: addr,
		disp:   d,
		log:    logging.Component("server"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/messages", s.handleMessage)
	s.mux = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.listen).Msg("lens listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, router.Reply{Error: "body too large", Code: "invalid_request"})
		return
	}

	var msg router.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, router.Reply{Error: "parse error", Code: "parse_error"})
		return
	}
	if msg.ID == "" {
		msg.ID = chimiddleware.GetReqID(r.Context())
	}

	reply := s.disp.Handle(r.Context(), msg)
	writeJSON(w, statusFor(reply.Code), reply)
}

// statusFor maps a reply error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case "invalid_request", "parse_error", "unknown_type", "video_disabled":
		return http.StatusBadRequest
	case "store_unavailable":
		return http.StatusServiceUnavailable
	case "operation_timed_out":
		return http.StatusGatewayTimeout
	case "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
