package gatekeep

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// singleWordHost matches hostnames with no dot: container names, localhost,
// bare hex IDs. Requests arriving through such hosts carry an internal origin
// that must be replaced with the configured application origin.
var singleWordHost = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Classifier extracts the normalized RequestContext from an inbound request.
type Classifier struct {
	// AppURI is the externally configured application origin used to rebuild
	// the requested URI when the request host is internal.
	AppURI string
}

// Classify builds the per-request context. It never fails: malformed query
// strings degrade to an empty parameter map.
func (c Classifier) Classify(r *http.Request) RequestContext {
	cookies := make(map[string]string)
	for _, ck := range r.Cookies() {
		cookies[ck.Name] = ck.Value
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}

	rawURL := scheme + "://" + r.Host + r.URL.RequestURI()

	return RequestContext{
		RawURL:       rawURL,
		Path:         r.URL.Path,
		RequestedURI: c.requestedURI(scheme, r.Host, r.URL.Path, r.URL.RawQuery),
		Query:        ParseRawQuery(r.URL.RawQuery),
		Cookies:      cookies,
	}
}

// requestedURI reconstructs the externally visible URI. When the host is a
// single word the configured application origin is substituted, concatenating
// the request path unless the origin already ends with it.
func (c Classifier) requestedURI(scheme, host, path, rawQuery string) string {
	uri := scheme + "://" + host + path

	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}

	if singleWordHost.MatchString(hostname) {
		origin := strings.TrimSuffix(c.AppURI, "/")
		trimmed := strings.TrimPrefix(path, "/")
		if trimmed == "" || strings.HasSuffix(origin, trimmed) {
			uri = origin
		} else {
			uri = origin + "/" + trimmed
		}
	}

	if rawQuery != "" {
		uri += "?" + rawQuery
	}
	return uri
}

// ParseRawQuery splits a raw query string on '&' then '='. Values are not
// percent-decoded and a value containing '=' is cut at the second separator;
// downstream consumers decode the few fields that need it. Malformed input
// yields an empty map.
func ParseRawQuery(raw string) map[string]string {
	params := make(map[string]string)
	if raw == "" {
		return params
	}
	for _, pair := range strings.Split(raw, "&") {
		parts := strings.Split(pair, "=")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		params[parts[0]] = parts[1]
	}
	return params
}
