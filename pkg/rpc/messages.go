package rpc

import (
	"errors"
	"fmt"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
)

// MethodDigestRun runs the topic digest workflow for one query.
const MethodDigestRun = "Digest.Run"

// MethodDigestTopics lists the configured topics.
const MethodDigestTopics = "Digest.Topics"

// DigestRequest is the input to Digest.Run.
type DigestRequest struct {
	Query string `json:"query"`
}

// DigestResponse is the output of Digest.Run.
type DigestResponse struct {
	Topic     string `json:"topic"`
	Response  string `json:"response"`
	Cached    bool   `json:"cached,omitempty"`
	LatencyUs int64  `json:"latency_us"`
}

// TopicsResponse is the output of Digest.Topics.
type TopicsResponse struct {
	Topics []string `json:"topics"`
}

// Error codes carried in Response.Code.
const (
	CodeInvalidInput  = "invalid_input"
	CodeEncoding      = "encoding"
	CodeClassifier    = "classification"
	CodeRegistry      = "registry"
	CodeUnavailable   = "unavailable"
	CodeTimeout       = "timeout"
	CodeInternal      = "internal"
	CodeUnknownMethod = "unknown_method"
)

var codeSentinels = []struct {
	code string
	err  error
}{
	{CodeInvalidInput, apperrors.ErrInvalidInput},
	{CodeEncoding, apperrors.ErrEncoding},
	{CodeClassifier, apperrors.ErrClassification},
	{CodeRegistry, apperrors.ErrRegistryInconsistency},
	{CodeUnavailable, apperrors.ErrUnavailable},
	{CodeTimeout, apperrors.ErrTimeout},
}

func codeFor(err error) string {
	for _, cs := range codeSentinels {
		if errors.Is(err, cs.err) {
			return cs.code
		}
	}
	return CodeInternal
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc error (%s): %s", e.Code, e.Message)
}

// Unwrap maps the wire code back onto the shared sentinel.
func (e *RemoteError) Unwrap() error {
	for _, cs := range codeSentinels {
		if cs.code == e.Code {
			return cs.err
		}
	}
	return apperrors.ErrInternal
}
