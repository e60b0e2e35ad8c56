// Package httpapi serves the JSON API the browser client talks to: the
// current state, action submission, and the loopback-only admin surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"citydev.io/internal/protocol"
	"citydev.io/internal/sim/world"
)

// World is the part of *world.World the API needs.
type World interface {
	ID() string
	CurrentTick() uint64
	StateJSON() []byte
	Metrics() world.WorldMetrics
	Do(ctx context.Context, a protocol.Action) (world.ActionResult, error)
	RequestSnapshot(ctx context.Context) (world.SnapshotReceipt, error)
}

var _ World = (*world.World)(nil)

type Options struct {
	ActionTimeout time.Duration
	CORSOrigins   []string

	// Token bucket per remote IP on POST /actions. Zero RPS disables it.
	ActionsRPS   float64
	ActionsBurst int

	EnableAdmin bool
	EnablePprof bool

	Metrics   http.Handler // mounted on /metrics when set
	WebSocket http.Handler // mounted on /v1/ws when set
	MCP       http.Handler // mounted on POST /mcp when set

	// AdminExtra is merged into GET /admin/v1/state.
	AdminExtra func() map[string]any

	Logger *log.Logger
}

const maxActionBody = 64 * 1024

type Server struct {
	world   World
	opts    Options
	limiter *ipLimiter
}

func NewServer(w World, opts Options) *Server {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 2 * time.Second
	}
	s := &Server{world: w, opts: opts}
	if opts.ActionsRPS > 0 {
		s.limiter = newIPLimiter(opts.ActionsRPS, opts.ActionsBurst, 10*time.Minute)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/state", s.handleState)
	r.Method(http.MethodPost, "/actions", s.limitActions(http.HandlerFunc(s.handleActions)))

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	if s.opts.WebSocket != nil {
		r.Method(http.MethodGet, "/v1/ws", s.opts.WebSocket)
	}
	if s.opts.MCP != nil {
		r.Method(http.MethodPost, "/mcp", s.limitActions(s.opts.MCP))
	}

	if s.opts.EnableAdmin {
		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(loopbackOnly)
			r.Get("/state", s.handleAdminState)
			r.Post("/snapshot", s.handleAdminSnapshot)
		})
	} else {
		s.printf("admin endpoints disabled")
	}
	if s.opts.EnablePprof {
		r.Route("/debug/pprof", func(r chi.Router) {
			r.Use(loopbackOnly)
			r.HandleFunc("/*", pprof.Index)
			r.HandleFunc("/cmdline", pprof.Cmdline)
			r.HandleFunc("/profile", pprof.Profile)
			r.HandleFunc("/symbol", pprof.Symbol)
			r.HandleFunc("/trace", pprof.Trace)
		})
	}

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) handleState(rw http.ResponseWriter, _ *http.Request) {
	b := s.world.StateJSON()
	if len(b) == 0 {
		http.Error(rw, protocol.ErrInternal+": state not available", http.StatusServiceUnavailable)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(b)
}

// limitActions applies the per-IP action bucket to another handler.
func (s *Server) limitActions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(remoteIP(r.RemoteAddr)) {
			writeError(rw, protocol.Errorf(protocol.ErrRateLimit, "too many actions"))
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) handleActions(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxActionBody))
	if err != nil {
		writeError(rw, protocol.Errorf(protocol.ErrInvalidArgument, "read body: %v", err))
		return
	}
	act, err := protocol.DecodeAction(body)
	if err != nil {
		writeError(rw, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ActionTimeout)
	defer cancel()
	res, err := s.world.Do(ctx, act)
	if err != nil {
		if protocol.CodeOf(err) == protocol.ErrInternal {
			s.printf("action %s: %v", act.Kind, err)
		}
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

func (s *Server) handleAdminState(rw http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"world_id": s.world.ID(),
		"tick":     s.world.CurrentTick(),
		"metrics":  s.world.Metrics(),
	}
	if s.opts.AdminExtra != nil {
		for k, v := range s.opts.AdminExtra() {
			resp[k] = v
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleAdminSnapshot(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	rec, err := s.world.RequestSnapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": rec.Tick, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": rec.Tick, "date": rec.Date.UTC().Format(time.RFC3339)})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrAlreadyOwned, protocol.ErrNotOwned, protocol.ErrAlreadyMaxed, protocol.ErrPrerequisiteUnmet:
		return http.StatusConflict
	case protocol.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	case protocol.ErrInvalidArgument:
		return http.StatusBadRequest
	case protocol.ErrBusy:
		return http.StatusServiceUnavailable
	case protocol.ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with a plain-text "CODE: message" body.
func writeError(rw http.ResponseWriter, err error) {
	code := protocol.CodeOf(err)
	msg := err.Error()
	var pe *protocol.Error
	if !errors.As(err, &pe) {
		msg = code + ": " + msg
	}
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.Header().Set("X-Content-Type-Options", "nosniff")
	rw.WriteHeader(StatusFor(code))
	_, _ = io.WriteString(rw, msg)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func IsLoopbackRemote(remoteAddr string) bool {
	ip := net.ParseIP(remoteIP(remoteAddr))
	return ip != nil && ip.IsLoopback()
}

func remoteIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	return strings.TrimSuffix(host, "]")
}

func (s *Server) printf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}
