package llm

import (
	"fmt"
	"strings"

	mnemoerrors "mnemo/internal/errors"
)

// classifyProviderError maps raw provider errors into the retry taxonomy
// so the dispatch engine can make uniform decisions. Classification works
// on the error text, never on provider-specific error objects.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if mnemoerrors.IsContentBlocked(err) {
		return err
	}

	lowerErr := strings.ToLower(err.Error())

	// Rate limit errors (429)
	if strings.Contains(lowerErr, "429") || strings.Contains(lowerErr, "rate limit") ||
		strings.Contains(lowerErr, "resource_exhausted") {
		return mnemoerrors.NewTransientError(err,
			"The model is rate limited right now. Please try again in a minute.")
	}

	// Server errors (500, 502, 503, 504)
	if strings.Contains(lowerErr, "500") || strings.Contains(lowerErr, "internal server error") ||
		strings.Contains(lowerErr, "502") || strings.Contains(lowerErr, "bad gateway") ||
		strings.Contains(lowerErr, "503") || strings.Contains(lowerErr, "unavailable") ||
		strings.Contains(lowerErr, "504") || strings.Contains(lowerErr, "gateway timeout") ||
		strings.Contains(lowerErr, "overloaded") {
		return mnemoerrors.NewTransientError(err,
			"The model service is temporarily unavailable. Please try again shortly.")
	}

	// Network errors
	if strings.Contains(lowerErr, "connection refused") ||
		strings.Contains(lowerErr, "connection reset") || strings.Contains(lowerErr, "broken pipe") {
		return mnemoerrors.NewTransientError(err,
			"Could not reach the model service. Please try again shortly.")
	}

	if strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded") {
		return mnemoerrors.NewTransientError(err,
			"The model took too long to answer. Please try again.")
	}

	// Permanent errors
	if strings.Contains(lowerErr, "401") || strings.Contains(lowerErr, "unauthorized") ||
		strings.Contains(lowerErr, "api key") {
		return mnemoerrors.NewPermanentError(err,
			"The model provider rejected the configured API key.")
	}

	if strings.Contains(lowerErr, "403") || strings.Contains(lowerErr, "forbidden") {
		return mnemoerrors.NewPermanentError(err,
			"The configured account has no access to this model.")
	}

	if strings.Contains(lowerErr, "404") || strings.Contains(lowerErr, "not found") {
		return mnemoerrors.NewPermanentError(err,
			"The configured model name was not found.")
	}

	if strings.Contains(lowerErr, "400") || strings.Contains(lowerErr, "bad request") ||
		strings.Contains(lowerErr, "invalid_argument") {
		return mnemoerrors.NewPermanentError(err,
			"The model rejected the request parameters.")
	}

	// Default: return as-is, IsTransient falls back to its own heuristics.
	return err
}

// blockedReply is the fixed refusal shown when a provider's safety layer
// rejects the content.
const blockedReply = "I can't answer that one. Let's talk about something else."

// newBlockError wraps a provider safety rejection.
func newBlockError(reason string) error {
	return mnemoerrors.NewContentBlockedError(
		fmt.Errorf("provider blocked response: %s", reason), reason, blockedReply)
}
