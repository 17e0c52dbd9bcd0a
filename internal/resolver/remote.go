package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/normanking/jarvis/internal/apperr"
	"github.com/normanking/jarvis/internal/intent"
)

// errNoClassifier is returned by a remote tier with nothing behind it.
var errNoClassifier = errors.New("remote classifier not configured")

// RemoteTier calls the semantic classifier under a deadline and validates
// its answer against the catalog.
type RemoteTier struct {
	classifier Classifier
	timeout    time.Duration
}

// NewRemoteTier creates a remote tier. A zero timeout uses DefaultRemoteTimeout.
func NewRemoteTier(classifier Classifier, timeout time.Duration) *RemoteTier {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteTier{classifier: classifier, timeout: timeout}
}

// Enabled reports whether a classifier is configured.
func (r *RemoteTier) Enabled() bool {
	return r != nil && r.classifier != nil
}

// Classify asks the classifier about text. The returned intent carries a
// clamped confidence and Source remote.
func (r *RemoteTier) Classify(ctx context.Context, text string, catalog intent.Catalog) (intent.Intent, error) {
	if !r.Enabled() {
		return intent.Intent{}, errNoClassifier
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cls, err := r.classifier.Classify(ctx, strings.TrimSpace(text), catalog)
	if err != nil {
		return intent.Intent{}, err
	}
	if !catalog.Has(cls.Action) {
		return intent.Intent{}, fmt.Errorf("%w: action %q not in catalog", apperr.ErrMalformedResponse, cls.Action)
	}
	return cls.Intent(), nil
}
