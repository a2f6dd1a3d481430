package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/bb84server/logger"
)

// Server manages the RPC listener. Services are registered on a private
// rpc.Server rather than the package default.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr. Start must be called to accept connections.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   rpc.NewServer(),
	}, nil
}

// Register publishes rcvr's methods under name.
func (s *Server) Register(name string, rcvr interface{}) error {
	return s.server.RegisterName(name, rcvr)
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins accepting RPC connections. It returns once the listener is closed.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener. Open client connections finish on their own.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}
