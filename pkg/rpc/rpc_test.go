package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts ...func(*Server)) string {
	t.Helper()
	s := NewServer()
	for _, opt := range opts {
		opt(s)
	}
	s.Register(MethodDigestRun, func(_ context.Context, raw json.RawMessage) (any, error) {
		var req DigestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, err
		}
		switch req.Query {
		case "":
			return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "query must not be empty")
		case "???":
			return nil, fmt.Errorf("stage classify: %w", apperrors.ErrEncoding)
		}
		return &DigestResponse{Topic: "Sports", Response: "Here is the latest Sports news:"}, nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return ln.Addr().String()
}

func TestCallRoundTrip(t *testing.T) {
	addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	var resp DigestResponse
	require.NoError(t, c.Call(ctx, MethodDigestRun, DigestRequest{Query: "Did the Lakers win?"}, &resp))
	assert.Equal(t, "Sports", resp.Topic)
	assert.Equal(t, "Here is the latest Sports news:", resp.Response)
}

func TestCallErrorsMapToSentinels(t *testing.T) {
	addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	err = c.Call(ctx, MethodDigestRun, DigestRequest{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "query must not be empty")

	err = c.Call(ctx, MethodDigestRun, DigestRequest{Query: "???"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrEncoding)

	err = c.Call(ctx, "Digest.Nope", nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeUnknownMethod, remote.Code)
}

func TestStopClosesIdleConnections(t *testing.T) {
	s := NewServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ln) }()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	time.Sleep(20 * time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerClosesConnectionOnOversizedRequest(t *testing.T) {
	addr := startServer(t, func(s *Server) { s.SetMaxMessageBytes(512) })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	var resp DigestResponse
	err = c.Call(ctx, MethodDigestRun, DigestRequest{Query: strings.Repeat("x", 64*1024)}, &resp)
	require.Error(t, err)
	assert.Empty(t, resp.Topic)

	fresh, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer fresh.Close()
	require.NoError(t, fresh.Call(ctx, MethodDigestRun, DigestRequest{Query: "Did the Lakers win?"}, &resp))
	assert.Equal(t, "Sports", resp.Topic)
}
