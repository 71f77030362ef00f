package gatekeep

import (
	"fmt"
	"strconv"
	"strings"
)

// CookieCodec renders cookie mutations as raw Set-Cookie strings with the
// configured domain. All session cookies are SameSite=strict and Path=/.
type CookieCodec struct {
	Domain string
}

// Render produces the Set-Cookie string for a mutation. A MaxAge of zero is
// the canonical delete form.
func (c CookieCodec) Render(m CookieMutation) string {
	s := fmt.Sprintf("%s=%s; Domain=%s; Path=/; Max-Age=%d; SameSite=strict;",
		m.Name, m.Value, c.Domain, m.MaxAge)
	if m.HTTPOnly {
		s += " HttpOnly;"
	}
	if m.Secure {
		s += " Secure;"
	}
	return s
}

// Set returns a plain mutation for the given name, value and lifetime.
func Set(name, value string, maxAge int) CookieMutation {
	return CookieMutation{Name: name, Value: value, MaxAge: maxAge}
}

// Clear returns the delete form for a cookie.
func Clear(name string) CookieMutation {
	return CookieMutation{Name: name, MaxAge: 0}
}

// ClearToken returns the delete form for the jwt cookie used on logout and
// invalidated sessions. Logout is a trust boundary, so the cleared cookie is
// additionally HttpOnly and Secure.
func ClearToken() CookieMutation {
	return CookieMutation{Name: CookieJWT, MaxAge: 0, HTTPOnly: true, Secure: true}
}

// ParseSetCookie parses a string produced by Render back into name, value and
// max-age. Used by the CLI probe and tests.
func ParseSetCookie(s string) (name, value string, maxAge int) {
	maxAge = -1
	for i, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if i == 0 {
			name, value = k, v
			continue
		}
		if strings.EqualFold(k, "Max-Age") {
			if n, err := strconv.Atoi(v); err == nil {
				maxAge = n
			}
		}
	}
	return name, value, maxAge
}
