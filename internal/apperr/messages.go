package apperr

import "errors"

// Spoken responses for each failure class.
const (
	MessageAPIKeyMissing = "I'm afraid the OpenAI API key hasn't been configured yet, sir. Please set it up in the settings."
	MessageRateLimit     = "We've hit the rate limit. Perhaps we should give it a moment before trying again."
	MessageNetworkError  = "I'm experiencing network difficulties. Please check your connection."
	MessageGenericError  = "Something's gone wrong. Not my finest moment."
)

// UserMessage maps err to the text the assistant should say. It never
// includes err's own text, which may carry request detail.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return MessageAPIKeyMissing
	case errors.Is(err, ErrQuotaExceeded):
		return MessageRateLimit
	case errors.Is(err, ErrGatewayExhausted):
		var status *StatusError
		if errors.As(err, &status) && status.StatusCode == 429 {
			return MessageRateLimit
		}
		if !errors.As(err, &status) && !errors.Is(err, ErrMalformedResponse) {
			return MessageNetworkError
		}
		return MessageGenericError
	default:
		return MessageGenericError
	}
}
