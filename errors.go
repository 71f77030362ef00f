package gatekeep

import (
	"errors"
	"fmt"
)

var (
	// ErrAllCandidatesFailed is logged when every identity-server candidate
	// failed to produce a meaningful response.
	ErrAllCandidatesFailed = errors.New("all identity server candidates failed")
	// ErrExchangeRejected is returned when an OAuth2 code exchange came back
	// with a non-200 status.
	ErrExchangeRejected = errors.New("oauth2 exchange rejected")
)

// UnexpectedResponseError is returned when the identity server answered the
// session verification with a status the gate has no branch for. The session
// is destroyed and the request redirected back to authentication.
type UnexpectedResponseError struct {
	Status int
	Detail string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("invalid token response, status %d, detail %q", e.Status, e.Detail)
}
