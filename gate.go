package gatekeep

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"go.halcyon.sh/gatekeep/config"
)

// SessionVerifier validates a bearer token against the identity server.
// It never fails: unreachable servers yield the empty sentinel.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) VerificationResult
}

// Registrar performs the user-facing identity-server side effects the gate
// triggers: invitation registration and email-code confirmation.
type Registrar interface {
	// CreateUser registers an email and returns the response status code.
	CreateUser(ctx context.Context, email string) (int, error)
	// ConfirmEmail posts an email verification code. Best effort.
	ConfirmEmail(ctx context.Context, email, code string) error
}

// ExchangeRequest carries one OAuth2 authorization-code exchange.
type ExchangeRequest struct {
	Provider   string
	Code       string
	Referrer   string
	State      string
	Invitation string
}

// Exchanger completes OAuth2 authorization-code exchanges and returns the
// redirect URI the identity server hands back.
type Exchanger interface {
	ExchangeCode(ctx context.Context, req ExchangeRequest) (string, error)
}

// Gate is the request-gating decision machine. It is stateless across
// requests; all shared state lives behind its collaborators.
type Gate struct {
	cfg       *config.Config
	verifier  SessionVerifier
	registrar Registrar
	exchanger Exchanger
}

// NewGate wires the gate with its collaborators.
func NewGate(cfg *config.Config, v SessionVerifier, r Registrar, e Exchanger) *Gate {
	return &Gate{cfg: cfg, verifier: v, registrar: r, exchanger: e}
}

const (
	logoutSuffix    = "/user/logout"
	closePrefix     = "/user/close"
	userPrefix      = "/user"
	acceptInvPrefix = "/accept-invitation"
	managePath      = "/user/manage"
)

// Decide classifies one request and returns the gate outcome. The rules are
// evaluated in a fixed precedence order; the invitation bootstrap runs before
// the private-route allowlist so invite links work without a session, and
// /user/close paths bypass verification because they are themselves
// completing authentication.
//
// A returned error is an unexpected identity-server response; the outcome
// accompanying it still carries the recovery redirect and must be applied.
func (g *Gate) Decide(ctx context.Context, rc RequestContext) (Outcome, error) {
	if g.cfg.LandingOnly {
		if rc.Path != "/" {
			log.Info().Str("path", rc.Path).Msg("landing-only deployment, redirecting to root")
			return Outcome{Activated: true, Redirect: "/"}, nil
		}
		return Outcome{}, nil
	}
	if g.cfg.Mode == config.AuthModeNone {
		return Outcome{}, nil
	}

	log.Debug().Str("requested", rc.RequestedURI).Msg("gating request")

	if strings.HasSuffix(rc.RequestedURI, logoutSuffix) {
		return Outcome{
			Activated: true,
			Redirect:  "/",
			Cookies:   []CookieMutation{ClearToken()},
		}, nil
	}

	if code, email := rc.QueryParam("verify_email"), rc.QueryParam("email"); code != "" && email != "" {
		// side effect only, a failed confirmation never blocks the gate
		if err := g.registrar.ConfirmEmail(ctx, email, code); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("email verification ping failed")
		}
	}

	var out Outcome
	invited := rc.QueryParam("code") != "" && rc.QueryParam("email") != ""
	if invited {
		out = g.bootstrapInvitation(ctx, rc)
	}

	if !g.isPrivate(rc.Path) && !strings.HasPrefix(rc.Path, userPrefix) {
		if !(strings.HasPrefix(rc.Path, acceptInvPrefix) && rc.Token() != "") {
			return out, nil
		}
		// an authenticated user clicking an invite link still goes through
		// the session logic below
	}

	if strings.HasPrefix(rc.Path, closePrefix) {
		return out, nil
	}

	token := rc.Token()
	if token == "" {
		if g.cfg.Mode == config.AuthModeMagical &&
			strings.HasPrefix(rc.RequestedURI, g.cfg.AuthURI) &&
			rc.Path != managePath {
			// the auth UI is self contained for anonymous visitors
			return out, nil
		}
		log.Info().Str("requested", rc.RequestedURI).Msg("unauthenticated, redirecting to auth")
		return Outcome{
			Activated: true,
			Redirect:  g.cfg.AuthURI,
			Cookies: []CookieMutation{
				Clear(CookieJWT),
				Set(CookieHref, rc.RequestedURI, MaxAgeDay),
			},
		}, nil
	}

	res := g.verifier.VerifySession(ctx, token)
	return g.routeSession(rc, res, invited)
}

// routeSession maps a verification result onto an outcome following the
// status-code protocol of the identity server.
func (g *Gate) routeSession(rc RequestContext, res VerificationResult, invited bool) (Outcome, error) {
	body, decodeErr := res.Decode()
	destroyed := Outcome{
		Activated: true,
		Redirect:  g.cfg.AuthURI,
		Cookies: []CookieMutation{
			Clear(CookieJWT),
			Set(CookieHref, rc.RequestedURI, MaxAgeDay),
		},
	}

	var sessionOut Outcome
	switch {
	case res.Status == http.StatusPaymentRequired:
		if !strings.HasPrefix(rc.RequestedURI, g.cfg.SubscribeURI()) {
			target := g.cfg.SubscribeURI()
			if secret := body.ClientSecret(); secret != "" {
				target += "?customer_session=" + secret
			}
			log.Info().Str("target", target).Msg("payment required")
			sessionOut = Outcome{Activated: true, Redirect: target}
		}

	case (decodeErr == nil && body.HasMissingRequirements()) || res.Status == http.StatusForbidden:
		if !strings.HasPrefix(rc.RequestedURI, g.cfg.ManageURI()) {
			sessionOut = Outcome{Activated: true, Redirect: g.cfg.ManageURI()}
		}

	case res.Empty() && res.Failure == FailureProtocol:
		// a candidate answered, but with something we could not consume;
		// the session cannot be trusted
		log.Error().Str("failure", res.Failure.String()).Msg("unusable verification response, destroying session")
		return destroyed, nil

	case res.Empty() || res.Status == http.StatusBadGateway:
		// unreachable: keep the session, remember the destination
		log.Warn().Int("status", res.Status).Str("failure", res.Failure.String()).
			Msg("identity server unreachable, redirecting to down page")
		return Outcome{
			Activated: true,
			Redirect:  g.cfg.DownURI(),
			Cookies:   []CookieMutation{Set(CookieHref, rc.RequestedURI, MaxAgeDay)},
		}, nil

	case res.Status >= 500 && res.Status < 600:
		// transient server failure must not force a logout
		log.Error().Int("status", res.Status).Str("detail", body.DetailString()).
			Msg("identity server error, session preserved")
		return Outcome{Activated: true, Redirect: g.cfg.ErrorURI()}, nil

	case res.Status != http.StatusNoContent:
		if decodeErr != nil {
			log.Error().Err(decodeErr).Int("status", res.Status).Msg("verification response not parseable, destroying session")
			return destroyed, nil
		}
		return destroyed, &UnexpectedResponseError{Status: res.Status, Detail: body.DetailString()}

	case g.cfg.Mode == config.AuthModeMagical &&
		strings.HasPrefix(rc.RequestedURI, g.cfg.AuthURI) &&
		rc.Path != managePath:
		// an authenticated user should not linger on auth-only screens
		sessionOut = Outcome{Activated: true, Redirect: g.cfg.ManageURI()}

	default:
		log.Debug().Msg("session valid, no guard tripped")
	}

	if invited && !sessionOut.Activated {
		// an authenticated user following an invite link lands on the
		// in-app acceptance page with the team name attached
		team := strings.ReplaceAll(rc.QueryParam("team"), "+", " ")
		return Outcome{
			Activated: true,
			Redirect:  g.cfg.AppURI + "/invite/" + rc.QueryParam("code"),
			Cookies:   []CookieMutation{Set(CookieTeam, team, MaxAgeDay)},
		}, nil
	}
	return sessionOut, nil
}

// bootstrapInvitation converts an email+code invite link into session cookies
// and a login or register redirect. Deterministic for a given link: the same
// cookie set is produced on every evaluation.
func (g *Gate) bootstrapInvitation(ctx context.Context, rc RequestContext) Outcome {
	email := rc.QueryParam("email")
	code := rc.QueryParam("code")
	team := strings.ReplaceAll(rc.QueryParam("team"), "+", " ")

	cookies := []CookieMutation{
		Set(CookieEmail, email, MaxAgeDay),
		Set(CookieInvitation, code, MaxAgeDay),
		Set(CookieTeam, team, MaxAgeDay),
	}
	if rc.QueryParam("company") != "" {
		cookies = append(cookies, Set(CookieTeamID, rc.QueryParam("team_id"), MaxAgeDay))
	}

	target := g.cfg.RegisterURI()
	status, err := g.registrar.CreateUser(ctx, email)
	switch {
	case err != nil:
		// registration is best effort; an unreachable server still gets the
		// register page with the invitation cookies attached
		log.Warn().Err(err).Str("email", email).Msg("invitation registration failed")
	case status == http.StatusConflict:
		target = g.cfg.LoginURI()
	}

	log.Info().Str("email", email).Str("code", code).Str("target", target).Msg("invitation bootstrap")
	return Outcome{Activated: true, Redirect: target, Cookies: cookies}
}

// TokenFromQuery lifts a session token arriving as a token/jwt query
// parameter into the jwt cookie. On /user/close paths the request proceeds
// with the cookie attached; everywhere else the user is sent back to the
// destination remembered in the href cookie.
func (g *Gate) TokenFromQuery(rc RequestContext) Outcome {
	token := rc.QueryParam("token")
	if token == "" {
		token = rc.QueryParam("jwt")
	}
	if token == "" {
		return Outcome{}
	}

	if strings.HasPrefix(rc.Path, closePrefix) {
		return Outcome{Cookies: []CookieMutation{Set(CookieJWT, token, MaxAgeToken)}}
	}

	target := rc.Cookie(CookieHref)
	if target == "" {
		target = g.cfg.AppURI
	}
	return Outcome{
		Activated: true,
		Redirect:  target,
		Cookies: []CookieMutation{
			Set(CookieJWT, token, MaxAgeToken),
			Clear(CookieHref),
		},
	}
}

// CompleteOAuth2 finishes a third-party login callback on a
// /user/close/{provider} path. The state query parameter doubles as the
// bearer token so anonymous flows keep session continuity through the
// redirect chain. A failed exchange deactivates the outcome and the request
// falls through to whatever the close page serves.
func (g *Gate) CompleteOAuth2(ctx context.Context, rc RequestContext) Outcome {
	provider := path.Base(rc.Path)
	code := rc.QueryParam("code")
	if code == "" || provider == "" || provider == "close" {
		return Outcome{}
	}

	token := rc.QueryParam("state")
	if token == "" {
		token = rc.Token()
	}

	uri, err := g.exchanger.ExchangeCode(ctx, ExchangeRequest{
		Provider:   provider,
		Code:       code,
		Referrer:   g.cfg.AuthURI + "/close/" + provider,
		State:      token,
		Invitation: rc.Cookie(CookieInvitation),
	})
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("oauth2 exchange failed")
		return Outcome{}
	}

	out := Outcome{Activated: true, Redirect: uri}
	if token != "" {
		out.Headers = map[string]string{"Authorization": token}
	}
	return out
}

func (g *Gate) isPrivate(p string) bool {
	for _, prefix := range g.cfg.PrivateRoutes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
