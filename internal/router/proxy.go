package router

import (
	"context"

	"github.com/normanking/jarvis/internal/intent"
)

// Proxy is the unprivileged side's typed view of the router. It satisfies
// the resolver's Classifier, so the resolver never sees the boundary.
type Proxy struct {
	client Client
}

// NewProxy wraps c.
func NewProxy(c Client) *Proxy {
	return &Proxy{client: c}
}

func (p *Proxy) call(ctx context.Context, req Request, out any) error {
	reply, err := p.client.Call(ctx, req)
	if err != nil {
		return err
	}
	return decodeReply(reply, out)
}

// SetCredential stores key in the vault.
func (p *Proxy) SetCredential(ctx context.Context, key string) error {
	return p.call(ctx, SetCredential{Key: key}, nil)
}

// GetCredential returns the stored key; ok is false when none is stored.
func (p *Proxy) GetCredential(ctx context.Context) (key string, ok bool, err error) {
	var res CredentialResult
	if err := p.call(ctx, GetCredential{}, &res); err != nil {
		return "", false, err
	}
	if res.Key == nil {
		return "", false, nil
	}
	return *res.Key, true, nil
}

// ClearCredential removes the stored key.
func (p *Proxy) ClearCredential(ctx context.Context) error {
	return p.call(ctx, ClearCredential{}, nil)
}

// Quota returns the current quota window.
func (p *Proxy) Quota(ctx context.Context) (QuotaResult, error) {
	var res QuotaResult
	err := p.call(ctx, GetQuota{}, &res)
	return res, err
}

// Complete asks for a conversational answer.
func (p *Proxy) Complete(ctx context.Context, text string) (string, error) {
	var res string
	err := p.call(ctx, AIComplete{Text: text}, &res)
	return res, err
}

// Classify asks the remote classifier about utterance.
func (p *Proxy) Classify(ctx context.Context, utterance string, catalog intent.Catalog) (intent.Classification, error) {
	var res ClassifyResult
	err := p.call(ctx, AIClassify{Utterance: utterance, ActionCatalog: catalog}, &res)
	return res, err
}

// ClearContext empties the conversation buffer.
func (p *Proxy) ClearContext(ctx context.Context) error {
	return p.call(ctx, ClearContext{}, nil)
}

// DrainQueue replays the offline queue.
func (p *Proxy) DrainQueue(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	err := p.call(ctx, DrainQueue{}, &res)
	return res, err
}
