package huolala

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OAuth endpoints. The %s placeholder takes the route.
const (
	oauthServerFormat = "https://open.huolala.cn/%s?isSandbox="
	oauthAuthorize    = "oauth/authorize"
	oauthToken        = "oauth/token"
)

// GrantType selects how ExchangeCode interprets its code argument.
type GrantType string

const (
	// GrantAuthorizationCode exchanges an authorization code.
	GrantAuthorizationCode GrantType = "authorization_code"
	// GrantPassword exchanges an authorized mobile number.
	GrantPassword GrantType = "password"
	// GrantRefreshToken exchanges a refresh token.
	GrantRefreshToken GrantType = "refresh_token"
)

// OAuthServer returns the OAuth server format string for the configured environment.
func (c *Client) OAuthServer() string {
	return oauthServerFormat + strconv.FormatBool(c.config.Sandbox())
}

func (c *Client) oauthURL(route string) string {
	return fmt.Sprintf(c.OAuthServer(), route)
}

// AuthorizeURL returns the authorization page a merchant is sent to.
// redirectURI is URL-escaped here; pass it unencoded or it is encoded twice.
func (c *Client) AuthorizeURL(redirectURI string) string {
	return c.oauthURL("#/"+oauthAuthorize) + "&" + encodeQuery([][2]string{
		{"response_type", "code"},
		{"client_id", c.config.AppKey()},
		{"redirect_uri", redirectURI},
	})
}

// ExchangeCode exchanges a single-use authorization code (or, for
// GrantPassword, an authorized mobile number) for a token payload.
// The payload is returned verbatim.
func (c *Client) ExchangeCode(ctx context.Context, code string, grantType GrantType) (json.RawMessage, error) {
	params := [][2]string{
		{"grant_type", string(grantType)},
		{"client_id", c.config.AppKey()},
	}
	switch grantType {
	case GrantAuthorizationCode:
		params = append(params, [2]string{"code", code})
	case GrantPassword:
		params = append(params, [2]string{"auth_mobile", code})
	default:
		return nil, NewConfigurationError(StageOAuth, "UNSUPPORTED_GRANT_TYPE", fmt.Sprintf("grant type %q cannot exchange a code", grantType))
	}
	return c.tokenRequest(ctx, "huolala.ExchangeCode", grantType, params)
}

// RefreshAccessToken exchanges a refresh token for a new token payload.
// The payload is returned verbatim.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	return c.tokenRequest(ctx, "huolala.RefreshAccessToken", GrantRefreshToken, [][2]string{
		{"grant_type", string(GrantRefreshToken)},
		{"client_id", c.config.AppKey()},
		{"refresh_token", refreshToken},
	})
}

func (c *Client) tokenRequest(ctx context.Context, spanName string, grantType GrantType, params [][2]string) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("huolala.grant_type", string(grantType)),
		attribute.Bool("huolala.sandbox", c.config.Sandbox()),
	))
	defer span.End()

	c.logger.Ctx(ctx).Info("Requesting Huolala token",
		zap.String("grant_type", string(grantType)),
		zap.Bool("sandbox", c.config.Sandbox()),
	)

	raw, err := c.transport.Send(ctx, c.oauthURL(oauthToken)+"&"+encodeQuery(params), nil)
	if err != nil {
		err = annotate(err, KindTransport, StageOAuth, "TOKEN_REQUEST_FAILED", "token request failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Ctx(ctx).Error("Huolala token request failed",
			zap.String("grant_type", string(grantType)),
			zap.Error(err),
		)
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// encodeQuery URL-encodes pairs, keeping their order.
func encodeQuery(pairs [][2]string) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}
