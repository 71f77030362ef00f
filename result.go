package gatekeep

import (
	"bytes"
	"encoding/json"
)

// FailureKind tags why a verification produced no usable response. The gate
// branches on this value, never on concrete error types.
type FailureKind int

const (
	// FailureNone means a response was received.
	FailureNone FailureKind = iota
	// FailureNetwork means no candidate server could be reached.
	FailureNetwork
	// FailureTimeout means the verification deadline elapsed.
	FailureTimeout
	// FailureProtocol means a candidate answered but its response could not
	// be consumed.
	FailureProtocol
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureTimeout:
		return "timeout"
	case FailureProtocol:
		return "protocol"
	default:
		return "none"
	}
}

// VerificationResult is the outcome of one session verification. A zero
// Status is the empty sentinel: the identity server was unreachable and
// Failure says why.
type VerificationResult struct {
	Status  int
	Body    []byte
	Failure FailureKind
}

// Empty reports whether this is the unreachable-server sentinel.
func (r VerificationResult) Empty() bool { return r.Status == 0 }

// SessionBody is the decoded identity-server response body. Detail is
// polymorphic: a message string on errors, a nested object on payment
// responses, a redirect URI on OAuth2 exchanges.
type SessionBody struct {
	Detail              json.RawMessage `json:"detail"`
	MissingRequirements json.RawMessage `json:"missing_requirements"`
}

// Decode parses the response body. An empty body decodes to the zero value.
func (r VerificationResult) Decode() (SessionBody, error) {
	var body SessionBody
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return SessionBody{}, err
	}
	return body, nil
}

// HasMissingRequirements reports whether the body carried a non-null
// missing_requirements member. Presence alone is meaningful; an empty list
// still routes the user to the manage page.
func (b SessionBody) HasMissingRequirements() bool {
	return len(b.MissingRequirements) > 0 && !bytes.Equal(b.MissingRequirements, []byte("null"))
}

// DetailString returns the detail member when it is a plain string.
func (b SessionBody) DetailString() string {
	var s string
	if err := json.Unmarshal(b.Detail, &s); err != nil {
		return string(b.Detail)
	}
	return s
}

// ClientSecret extracts detail.customer_session.client_secret from payment
// responses; it returns "" when any part of the chain is absent.
func (b SessionBody) ClientSecret() string {
	var detail struct {
		CustomerSession struct {
			ClientSecret string `json:"client_secret"`
		} `json:"customer_session"`
	}
	if err := json.Unmarshal(b.Detail, &detail); err != nil {
		return ""
	}
	return detail.CustomerSession.ClientSecret
}
