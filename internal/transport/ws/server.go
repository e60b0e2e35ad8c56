// Package ws pushes the published world state to websocket clients after
// every tick.
package ws

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"citydev.io/internal/sim/world"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StateSource is the part of the world the push server needs.
type StateSource interface {
	Subscribe(ctx context.Context, out chan []byte) (uint64, error)
	Unsubscribe(id uint64)
}

type Server struct {
	world StateSource
	log   *log.Logger

	upgrader websocket.Upgrader
	queue    int
}

var _ StateSource = (*world.World)(nil)

// OriginChecker accepts upgrades whose Origin is one of origins, matches the
// request host, or is absent (non-browser clients). "*" accepts any origin.
func OriginChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		if allowed[strings.TrimRight(strings.ToLower(origin), "/")] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// NewServer returns a push server. checkOrigin may be nil to accept any origin.
func NewServer(w StateSource, checkOrigin func(r *http.Request) bool, logger *log.Logger) *Server {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
		queue: 4,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, s.queue)
		id, err := s.world.Subscribe(ctx, out)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "world unavailable"),
				time.Now().Add(time.Second))
			return
		}
		defer s.world.Unsubscribe(id)
		s.printf("ws subscribe id=%d remote=%s", id, r.RemoteAddr)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: clients send nothing meaningful, but reading is how
		// close frames and pongs are noticed.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		cancel()
		<-done
		s.printf("ws unsubscribe id=%d", id)
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
