package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"colonycraft.ai/internal/protocol"
)

const (
	defaultMaxSubscribers = 64
	defaultSendBuffer     = 16
	defaultIdleTimeout    = 60 * time.Second
)

// Server replicates citizen view snapshots to subscribed observers. It
// implements colony.Publisher: each published snapshot is encoded once and
// fanned out to every session; a slow session loses older snapshots, never
// the newest one.
type Server struct {
	colonyID string
	log      *log.Logger

	maxSubscribers int
	sendBuffer     int
	idleTimeout    time.Duration

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[uint64]*session
	last     []byte
	nextID   uint64

	publishedTotal atomic.Uint64
	droppedTotal   atomic.Uint64
	rejectedTotal  atomic.Uint64
}

type session struct {
	id  uint64
	out chan []byte
}

type Options struct {
	MaxSubscribers int
	SendBuffer     int
	// IdleTimeout is how long a session may go without a pong. Pings are
	// sent at half this interval, so quiet observers stay subscribed.
	IdleTimeout time.Duration
}

type Stats struct {
	Subscribers    int    `json:"subscribers"`
	PublishedTotal uint64 `json:"published_total"`
	DroppedTotal   uint64 `json:"dropped_total"`
	RejectedTotal  uint64 `json:"rejected_total"`
}

func NewServer(colonyID string, opts Options, logger *log.Logger) *Server {
	if opts.MaxSubscribers <= 0 {
		opts.MaxSubscribers = defaultMaxSubscribers
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Server{
		colonyID:       colonyID,
		log:            logger,
		maxSubscribers: opts.MaxSubscribers,
		sendBuffer:     opts.SendBuffer,
		idleTimeout:    opts.IdleTimeout,
		sessions:       map[uint64]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Publish implements colony.Publisher. It never blocks the caller.
func (s *Server) Publish(msg protocol.CitizenViewsMsg) {
	b, err := protocol.EncodeCitizenViews(msg)
	if err != nil {
		s.printf("encode citizen views tick=%d: %v", msg.Tick, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = b
	for _, sess := range s.sessions {
		if !sendLatest(sess.out, b) {
			s.droppedTotal.Add(1)
		}
	}
	s.publishedTotal.Add(1)
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	return Stats{
		Subscribers:    n,
		PublishedTotal: s.publishedTotal.Load(),
		DroppedTotal:   s.droppedTotal.Load(),
		RejectedTotal:  s.rejectedTotal.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer s.unregister(sess)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		})

		// Writer goroutine. It also owns pings.
		writeErr := make(chan error, 1)
		go func() {
			ping := time.NewTicker(s.idleTimeout / 2)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						writeErr <- err
						cancel()
						return
					}
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: observers send nothing after SUBSCRIBE but pongs,
		// which the pong handler turns into a fresh read deadline.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		s.reject(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest)
		return nil
	}
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		s.reject(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest)
		return nil
	}
	if sub.ProtocolVersion != protocol.Version {
		s.reject(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest)
		return nil
	}
	if sub.ColonyID != s.colonyID {
		s.reject(conn, websocket.ClosePolicyViolation, protocol.ErrColonyNotFound)
		return nil
	}

	sess := s.register()
	if sess == nil {
		s.reject(conn, websocket.CloseTryAgainLater, protocol.ErrColonyBusy)
		return nil
	}
	s.printf("observer %d subscribed to %s", sess.id, s.colonyID)
	return sess
}

// register adds a session primed with the latest snapshot, if any.
func (s *Server) register() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.maxSubscribers {
		return nil
	}
	s.nextID++
	sess := &session{id: s.nextID, out: make(chan []byte, s.sendBuffer)}
	if s.last != nil {
		sess.out <- s.last
	}
	s.sessions[sess.id] = sess
	return sess
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.printf("observer %d left", sess.id)
}

func (s *Server) reject(conn *websocket.Conn, code int, reason string) {
	s.rejectedTotal.Add(1)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// sendLatest enqueues b, dropping the oldest queued frame if the channel is
// full. It reports false when something was dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}
