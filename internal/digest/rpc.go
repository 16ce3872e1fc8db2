package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chameleon-ai/chameleon/internal/topic"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/logger"
	"github.com/chameleon-ai/chameleon/pkg/rpc"
)

// RegisterRPC exposes Digest.Run and Digest.Topics on srv.
func RegisterRPC(srv *rpc.Server, svc *Service, reg *topic.Registry) {
	svc = svc.For("rpc")

	srv.Register(rpc.MethodDigestRun, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req rpc.DigestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "malformed params: %v", err)
		}
		ctx = logger.WithRequestID(ctx, uuid.NewString())
		ans, err := svc.Digest(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		return &rpc.DigestResponse{
			Topic:     ans.Topic,
			Response:  ans.Response,
			Cached:    ans.Cached,
			LatencyUs: ans.Latency.Microseconds(),
		}, nil
	})

	srv.Register(rpc.MethodDigestTopics, func(context.Context, json.RawMessage) (any, error) {
		return &rpc.TopicsResponse{Topics: reg.Names()}, nil
	})
}

// Remote answers queries through a Digest.Run server. It has the same
// Digest method as Service so the chat client can use either.
type Remote struct {
	client *rpc.Client
}

func NewRemote(client *rpc.Client) *Remote {
	return &Remote{client: client}
}

func (r *Remote) Digest(ctx context.Context, query string) (Answer, error) {
	var resp rpc.DigestResponse
	if err := r.client.Call(ctx, rpc.MethodDigestRun, rpc.DigestRequest{Query: query}, &resp); err != nil {
		return Answer{}, fmt.Errorf("calling %s: %w", rpc.MethodDigestRun, err)
	}
	ans := Answer{Cached: resp.Cached}
	ans.Topic = resp.Topic
	ans.Response = resp.Response
	ans.Latency = microseconds(resp.LatencyUs)
	return ans, nil
}

// Topics lists the server's topic names.
func (r *Remote) Topics(ctx context.Context) ([]string, error) {
	var resp rpc.TopicsResponse
	if err := r.client.Call(ctx, rpc.MethodDigestTopics, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("calling %s: %w", rpc.MethodDigestTopics, err)
	}
	return resp.Topics, nil
}

func microseconds(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
