package gatekeep

import "strings"

// Cookie names shared between the gate and the auth UI.
const (
	CookieJWT        = "jwt"
	CookieHref       = "href"
	CookieEmail      = "email"
	CookieInvitation = "invitation"
	CookieTeam       = "team"
	CookieTeamID     = "team_id"
)

// Cookie lifetimes in seconds.
const (
	MaxAgeDay   = 86400
	MaxAgeToken = 7 * 86400
)

// RequestContext is the immutable per-request view the gate operates on.
// It is constructed once per request by the Classifier and never mutated.
type RequestContext struct {
	// RawURL is the request URL exactly as received.
	RawURL string
	// Path is the URL path component.
	Path string
	// RequestedURI is the externally visible URI, reconstructed when the
	// request arrived through a single-word internal hostname.
	RequestedURI string
	// Query holds raw query parameters, split but not decoded.
	Query map[string]string
	// Cookies holds the request cookies by name.
	Cookies map[string]string
}

// QueryParam returns the raw value of a query parameter, or "".
func (rc RequestContext) QueryParam(name string) string { return rc.Query[name] }

// Cookie returns the value of a request cookie, or "".
func (rc RequestContext) Cookie(name string) string { return rc.Cookies[name] }

// Token returns the session token from the jwt cookie with any number of
// "Bearer " scheme labels stripped; the token is the last space-separated
// field of the cookie value.
func (rc RequestContext) Token() string {
	raw := rc.Cookies[CookieJWT]
	if raw == "" {
		return ""
	}
	fields := strings.Split(raw, " ")
	return fields[len(fields)-1]
}

// CookieMutation is one Set-Cookie directive the caller must apply.
// MaxAge zero is the canonical delete form.
type CookieMutation struct {
	Name     string
	Value    string
	MaxAge   int
	HTTPOnly bool
	Secure   bool
}

// Outcome is the sole return contract of the gate hooks. Activated false
// means the request proceeds unmodified apart from any cookie mutations;
// activated true means the caller must short-circuit with the redirect.
// Never both proceed and redirect.
type Outcome struct {
	Activated bool
	Redirect  string
	Cookies   []CookieMutation
	// Headers carries extra response headers, e.g. a forwarded Authorization
	// after an OAuth2 exchange.
	Headers map[string]string
}
