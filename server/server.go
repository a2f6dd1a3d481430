package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/bb84server/broadcast"
	"github.com/wfunc/bb84server/logger"
	"github.com/wfunc/bb84server/monitor"
	"github.com/wfunc/bb84server/network"
	"github.com/wfunc/bb84server/room"
	"github.com/wfunc/bb84server/services"
	"github.com/wfunc/bb84server/session"
)

const requestTimeout = 5 * time.Second

// Options wires a GameServer to the room it fronts. Broadcaster defaults to a
// SessionBroadcaster over Sessions. A zero HeartbeatInterval disables the idle
// timeout.
type Options struct {
	HTTPAddress       string
	Room              *room.Room
	Sessions          *session.Manager
	Broadcaster       broadcast.Broadcaster
	History           *services.HistoryService
	Metrics           *monitor.Metrics
	HeartbeatInterval time.Duration
}

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	room           *room.Room
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	history        *services.HistoryService
	metrics        *monitor.Metrics
	httpServer     *http.Server
	heartbeat      time.Duration
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
	connections    sync.WaitGroup
}

func NewGameServer(opts Options) *GameServer {
	s := &GameServer{
		addr:           opts.HTTPAddress,
		room:           opts.Room,
		sessionManager: opts.Sessions,
		history:        opts.History,
		broadcaster:    opts.Broadcaster,
		metrics:        opts.Metrics,
		heartbeat:      opts.HeartbeatInterval,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	if s.sessionManager == nil {
		s.sessionManager = session.NewManager()
	}
	if s.broadcaster == nil {
		s.broadcaster = broadcast.NewSessionBroadcaster(s.sessionManager)
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves HTTP until Shutdown. It returns nil after a clean shutdown.
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is Start on an existing listener.
func (s *GameServer) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, closes every websocket and waits for the
// connection handlers to release their roles.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	err := s.httpServer.Shutdown(ctx)

	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.connections.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.connections.Add(1)
	defer s.connections.Done()
	wsConn := network.NewWSConnection(conn)
	if s.heartbeat > 0 {
		wsConn.SetHeartbeat(s.heartbeat)
	}
	s.handleConnection(wsConn)
}

func (s *GameServer) handleConnection(conn network.Connection) {
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s, idle %s",
			conn.RemoteAddr(), sess.GetID(), time.Since(sess.LastActive()).Round(time.Millisecond))
		s.sessionManager.Remove(sess.GetID())
		s.releaseRole(sess)
		sess.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := conn.ReadPacket()
			if errors.Is(err, network.ErrMalformedPacket) {
				logger.Log.Debugf("Session %s sent a bad frame: %v", sess.GetID(), err)
				s.sendError(sess, err)
				continue
			}
			if err != nil {
				return
			}
			s.dispatch(sess, packet)
		}
	}
}

// releaseRole frees the slot held by sess, if any.
func (s *GameServer) releaseRole(sess *session.Session) {
	role, had := sess.ReleaseRole()
	if !had {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := s.room.Leave(ctx, role); err != nil && !errors.Is(err, room.ErrClosed) {
		logger.Log.Warnf("Session %s failed to release %s: %v", sess.GetID(), role, err)
	}
}
