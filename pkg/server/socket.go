// Package server exposes the command router over a Unix domain
// socket. One line in, one JSON response line out.
package server

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/bgvfd/radiod/pkg/logging"
	"github.com/bgvfd/radiod/pkg/protocol"
	"github.com/bgvfd/radiod/pkg/router"
)

// ControlServer is the Unix socket command surface.
type ControlServer struct {
	socketPath string
	router     *router.Router
	listener   net.Listener

	mutex   sync.Mutex
	running bool
}

// NewControlServer creates a control server over the given router.
func NewControlServer(socketPath string, r *router.Router) *ControlServer {
	return &ControlServer{
		socketPath: socketPath,
		router:     r,
	}
}

// Start binds the socket and begins accepting connections.
func (s *ControlServer) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.running {
		return fmt.Errorf("control server already running")
	}

	// Remove stale socket file from an unclean shutdown
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}
	s.listener = listener
	s.running = true

	if err := os.Chmod(s.socketPath, 0660); err != nil {
		logging.Warnf("server", "failed to set socket permissions: %v", err)
	}

	logging.Infof("server", "control socket listening on %s", s.socketPath)
	go s.acceptConnections()
	return nil
}

// Stop closes the listener and removes the socket file.
func (s *ControlServer) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
	return nil
}

func (s *ControlServer) isRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// acceptConnections accepts and handles socket connections
func (s *ControlServer) acceptConnections() {
	for s.isRunning() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isRunning() {
				logging.Warnf("server", "socket accept error: %v", err)
			}
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single socket connection
func (s *ControlServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := s.router.Dispatch(cmd)
		conn.Write([]byte(response.String() + "\n"))
	}
}
