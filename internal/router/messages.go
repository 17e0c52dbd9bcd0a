// Package router carries typed requests from the unprivileged context (the
// resolver) to the privileged one (gateway, vault and limiter) and returns
// exactly one reply per request.
package router

import (
	"github.com/normanking/jarvis/internal/gateway"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/quota"
)

// MessageType names a request on the wire.
type MessageType string

const (
	TypeSetCredential   MessageType = "SET_CREDENTIAL"
	TypeGetCredential   MessageType = "GET_CREDENTIAL"
	TypeClearCredential MessageType = "CLEAR_CREDENTIAL"
	TypeGetQuota        MessageType = "GET_QUOTA"
	TypeAIComplete      MessageType = "AI_COMPLETE"
	TypeAIClassify      MessageType = "AI_CLASSIFY"
	TypeClearContext    MessageType = "CLEAR_CONTEXT"
	TypeDrainQueue      MessageType = "DRAIN_QUEUE"
)

// Types returns every message type the router handles.
func Types() []MessageType {
	return []MessageType{
		TypeSetCredential,
		TypeGetCredential,
		TypeClearCredential,
		TypeGetQuota,
		TypeAIComplete,
		TypeAIClassify,
		TypeClearContext,
		TypeDrainQueue,
	}
}

// Request is the closed set of messages. Only types in this package
// implement it.
type Request interface {
	Type() MessageType
	isRequest()
}

// ═══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ═══════════════════════════════════════════════════════════════════════════════

// SetCredential stores the API key.
type SetCredential struct {
	Key string `json:"key"`
}

// GetCredential reads the API key back.
type GetCredential struct{}

// ClearCredential removes the API key.
type ClearCredential struct{}

// GetQuota reports the current quota window.
type GetQuota struct{}

// AIComplete asks for a conversational answer.
type AIComplete struct {
	Text string `json:"text"`
}

// AIClassify asks the remote classifier to map an utterance onto a catalog.
// An empty catalog means the default one.
type AIClassify struct {
	Utterance     string         `json:"utterance"`
	ActionCatalog intent.Catalog `json:"actionCatalog,omitempty"`
}

// ClearContext empties the conversation buffer.
type ClearContext struct{}

// DrainQueue replays the offline queue.
type DrainQueue struct{}

func (SetCredential) Type() MessageType   { return TypeSetCredential }
func (GetCredential) Type() MessageType   { return TypeGetCredential }
func (ClearCredential) Type() MessageType { return TypeClearCredential }
func (GetQuota) Type() MessageType        { return TypeGetQuota }
func (AIComplete) Type() MessageType      { return TypeAIComplete }
func (AIClassify) Type() MessageType      { return TypeAIClassify }
func (ClearContext) Type() MessageType    { return TypeClearContext }
func (DrainQueue) Type() MessageType      { return TypeDrainQueue }

func (SetCredential) isRequest()   {}
func (GetCredential) isRequest()   {}
func (ClearCredential) isRequest() {}
func (GetQuota) isRequest()        {}
func (AIComplete) isRequest()      {}
func (AIClassify) isRequest()      {}
func (ClearContext) isRequest()    {}
func (DrainQueue) isRequest()      {}

// ═══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ═══════════════════════════════════════════════════════════════════════════════

// OKResult acknowledges a request with no other output.
type OKResult struct {
	OK bool `json:"ok"`
}

// CredentialResult carries the stored key, or null when none is stored.
type CredentialResult struct {
	Key *string `json:"key"`
}

// QuotaResult is the quota window snapshot.
type QuotaResult = quota.Status

// ClassifyResult is the remote classifier's answer.
type ClassifyResult = intent.Classification

// DrainResult summarizes a queue replay.
type DrainResult = gateway.DrainResult
