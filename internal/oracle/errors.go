package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Kind categorizes oracle failures so the dispatcher can decide between
// retrying and degrading.
type Kind string

const (
	// KindAuth means the credential was rejected; retrying cannot help.
	KindAuth Kind = "auth"

	// KindRateLimited means the backend throttled us.
	KindRateLimited Kind = "rate_limited"

	// KindUnavailable means the backend returned a server-side error.
	KindUnavailable Kind = "unavailable"

	// KindTimeout means the request exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindMalformed means the response could not be parsed into verdicts.
	KindMalformed Kind = "malformed"
)

// Error wraps an oracle failure with its category.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure may resolve on retry.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	}
	return false
}

// classifyErr maps an SDK or transport error to an *Error.
func classifyErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return &Error{Kind: KindAuth, Err: err}
		case apierr.StatusCode == 429:
			return &Error{Kind: KindRateLimited, Err: err}
		case apierr.StatusCode >= 500:
			return &Error{Kind: KindUnavailable, Err: err}
		}
	}
	return &Error{Kind: KindUnavailable, Err: err}
}
