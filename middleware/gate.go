// Package middleware mounts the gate as an echo middleware. It classifies
// each request, runs the hook chain and applies the winning outcome: cookies
// and redirect are emitted together, only once the decision is final.
package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	gatekeep "go.halcyon.sh/gatekeep"
	"go.halcyon.sh/gatekeep/config"
	"go.halcyon.sh/gatekeep/log"
)

// Gatekeeper binds the gate to an echo pipeline.
type Gatekeeper struct {
	cfg        *config.Config
	gate       *gatekeep.Gate
	classifier gatekeep.Classifier
	codec      gatekeep.CookieCodec
	logger     log.Logger
}

// New creates the middleware around a configured gate.
func New(cfg *config.Config, gate *gatekeep.Gate, logger log.Logger) *Gatekeeper {
	return &Gatekeeper{
		cfg:        cfg,
		gate:       gate,
		classifier: gatekeep.Classifier{AppURI: cfg.AppURI},
		codec:      gatekeep.CookieCodec{Domain: cfg.CookieDomain},
		logger:     logger,
	}
}

// Middleware returns the echo middleware. Per request the hooks run in a
// fixed order: token-from-query, OAuth2 completion (close paths only), then
// the auth gate. The first activated outcome wins; cookie mutations from
// non-activated outcomes accumulate and ride along with the final response.
func (g *Gatekeeper) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			rc := g.classifier.Classify(c.Request())
			logger := g.logger.With(map[string]any{
				"request_id": uuid.NewString(),
				"path":       rc.Path,
			})

			var carried []gatekeep.CookieMutation

			out := g.gate.TokenFromQuery(rc)
			if out.Activated {
				return g.apply(c, out, carried)
			}
			carried = append(carried, out.Cookies...)

			if strings.HasPrefix(rc.Path, "/user/close/") {
				out = g.gate.CompleteOAuth2(ctx, rc)
				if out.Activated {
					return g.apply(c, out, carried)
				}
				carried = append(carried, out.Cookies...)
			}

			out, err := g.gate.Decide(ctx, rc)
			if err != nil {
				// the outcome still carries the recovery redirect
				logger.Error(ctx, "gate rejected request", err,
					map[string]any{"requested": rc.RequestedURI})
			}
			if out.Activated {
				logger.Info(ctx, "gate redirect", map[string]any{"target": out.Redirect})
				return g.apply(c, out, carried)
			}

			g.setCookies(c, append(carried, out.Cookies...))
			return next(c)
		}
	}
}

// apply short-circuits the request with the outcome's redirect, attaching the
// carried and outcome cookies and any forwarded headers.
func (g *Gatekeeper) apply(c echo.Context, out gatekeep.Outcome, carried []gatekeep.CookieMutation) error {
	g.setCookies(c, append(carried, out.Cookies...))
	for k, v := range out.Headers {
		c.Response().Header().Set(k, v)
	}
	return c.Redirect(http.StatusTemporaryRedirect, out.Redirect)
}

func (g *Gatekeeper) setCookies(c echo.Context, mutations []gatekeep.CookieMutation) {
	header := c.Response().Header()
	for _, m := range mutations {
		header.Add("Set-Cookie", g.codec.Render(m))
	}
}
