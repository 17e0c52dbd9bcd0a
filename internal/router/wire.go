package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/normanking/jarvis/internal/apperr"
)

// Envelope is a request on the wire.
type Envelope struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers exactly one Envelope.
type Reply struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// WireError is an error flattened to its code.
type WireError struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// Err rebuilds the error on the receiving side. The result unwraps to the
// sentinel matching Code.
func (e *WireError) Err() error {
	if e == nil {
		return nil
	}
	return apperr.FromCode(e.Code, e.Message)
}

// NewEnvelope encodes req under id.
func NewEnvelope(id string, req Request) (Envelope, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("router: encode %s: %w", req.Type(), err)
	}
	return Envelope{ID: id, Type: req.Type(), Payload: payload}, nil
}

// Decode turns an envelope into its typed request.
func Decode(env Envelope) (Request, error) {
	var (
		req Request
		ok  = true
	)
	switch env.Type {
	case TypeSetCredential:
		req, ok = decodeAs[SetCredential](env.Payload)
	case TypeGetCredential:
		req = GetCredential{}
	case TypeClearCredential:
		req = ClearCredential{}
	case TypeGetQuota:
		req = GetQuota{}
	case TypeAIComplete:
		req, ok = decodeAs[AIComplete](env.Payload)
	case TypeAIClassify:
		req, ok = decodeAs[AIClassify](env.Payload)
	case TypeClearContext:
		req = ClearContext{}
	case TypeDrainQueue:
		req = DrainQueue{}
	default:
		return nil, &apperr.UnknownMessageTypeError{Type: string(env.Type)}
	}
	if !ok {
		return nil, fmt.Errorf("%w: malformed %s payload", apperr.ErrInvalidRequest, env.Type)
	}
	return req, nil
}

// decodeAs unmarshals payload into T. A missing payload decodes to the
// zero value.
func decodeAs[T Request](payload json.RawMessage) (Request, bool) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, true
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, false
	}
	return v, true
}

// HandleEnvelope decodes env, runs it and encodes the reply. It always
// returns a reply carrying env.ID.
func (r *Router) HandleEnvelope(ctx context.Context, env Envelope) Reply {
	req, err := Decode(env)
	if err != nil {
		r.observe(env.Type, r.now(), err)
		return ErrorReply(env.ID, err)
	}

	result, err := r.Handle(ctx, req)
	if err != nil {
		return ErrorReply(env.ID, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return ErrorReply(env.ID, fmt.Errorf("router: encode %s result: %w", env.Type, err))
	}
	return Reply{ID: env.ID, OK: true, Result: data}
}

// ErrorReply builds a failed reply for id.
func ErrorReply(id string, err error) Reply {
	return Reply{
		ID: id,
		Error: &WireError{
			Code:    apperr.CodeOf(err),
			Message: err.Error(),
		},
	}
}
