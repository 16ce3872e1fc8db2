// Package rpc provides a lightweight JSON-over-TCP RPC framework used to
// reach the digest workflow from terminal clients and other services.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// request carries a method name of the form "Service.Method" and an ID that
// is echoed in the response.
//
// Example server:
//
//	s := rpc.NewServer()
//	s.Register(rpc.MethodDigestRun, func(ctx context.Context, raw json.RawMessage) (any, error) {
//	    var req rpc.DigestRequest
//	    if err := json.Unmarshal(raw, &req); err != nil {
//	        return nil, err
//	    }
//	    // ... run the workflow ...
//	    return &rpc.DigestResponse{...}, nil
//	})
//	s.Serve(":9000")
//
// Example client:
//
//	c, _ := rpc.Dial(ctx, "localhost:9000")
//	var resp rpc.DigestResponse
//	c.Call(ctx, rpc.MethodDigestRun, &rpc.DigestRequest{Query: "Did the Lakers win?"}, &resp)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code classifies Error so
// clients can rebuild the matching sentinel.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	logger   *slog.Logger
	mu       sync.RWMutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	maxBytes int64
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
		maxBytes: DefaultMaxMessageBytes,
	}
}

// DefaultMaxMessageBytes caps a single request read from a connection.
const DefaultMaxMessageBytes = 1 << 20

// SetMaxMessageBytes changes the per-request cap. A connection that sends a
// larger request is closed. Call before Serve.
func (s *Server) SetMaxMessageBytes(n int) {
	if n > 0 {
		s.maxBytes = int64(n)
	}
}

// Register adds a handler for the given RPC method name.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve starts accepting TCP connections on the given address.
// It blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections from ln until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	budget := &budgetReader{r: conn}
	decoder := json.NewDecoder(budget)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		budget.remaining = s.maxBytes
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, errMessageTooLarge) {
				s.logger.Warn("request too large, closing connection", "remote", conn.RemoteAddr().String(), "limit", s.maxBytes)
			}
			return
		}

		s.mu.RLock()
		handler, exists := s.handlers[req.Method]
		s.mu.RUnlock()

		resp := Response{ID: req.ID}

		if !exists {
			resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
			resp.Code = CodeUnknownMethod
		} else {
			data, err := handler(s.ctx, req.Params)
			if err != nil {
				resp.Error = apperrors.PublicMessage(err)
				resp.Code = codeFor(err)
				s.logger.Warn("rpc call failed", "method", req.Method, "error", err)
			} else {
				resp.Data = data
			}
		}

		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and open connections, then waits for in-flight
// handlers to return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.logger.Info("rpc server stopped")
	})
}

var errMessageTooLarge = errors.New("rpc: message too large")

// budgetReader fails once more than remaining bytes are read. The server
// resets remaining before decoding each request.
type budgetReader struct {
	r         io.Reader
	remaining int64
}

func (b *budgetReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, errMessageTooLarge
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}
