package una

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

// Token is an opaque session token taken from the session cookie.
type Token string

var sessionCookiePattern = regexp.MustCompile(SessionCookieName + `=([^;]+)`)

type loginRequest struct {
	Login string `json:"login"`
}

type loginResponse struct {
	Challenge string `json:"challenge"`
}

type challengeRequest struct {
	Login     string `json:"login"`
	Challenge string `json:"challenge"`
	Response  string `json:"response"`
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ChallengeResponse computes SHA-512(challenge + SHA-512(login + password)),
// both digests as lower-case hex strings.
func ChallengeResponse(login, password, challenge string) string {
	initial := sha512Hex(login + password)
	return sha512Hex(challenge + initial)
}

// Authenticate performs the two round trips of the challenge login and
// returns the session token. Both calls are recorded in log before their
// responses are inspected.
func (c *Client) Authenticate(ctx context.Context, log *tracer.Log) (Token, error) {
	jsonHeader := http.Header{"Content-Type": {"application/json"}}

	resp, _, err := c.tracer.Do(ctx, log, StepChallenge, c.url(loginPath), tracer.RequestSpec{
		Method: http.MethodPost,
		Header: jsonHeader,
		JSON:   loginRequest{Login: c.creds.Login},
	})
	if err != nil {
		return "", domain.NewTransportError("Falha de conexão com o UNA", err)
	}

	var login loginResponse
	if err := json.Unmarshal(resp.Body, &login); err != nil || login.Challenge == "" {
		c.logger.Warn("login response carried no challenge",
			slog.Int("status", resp.StatusCode))
		return "", domain.NewAuthError(domain.KindNoChallenge,
			fmt.Sprintf("Failed to get challenge: %s", strings.TrimSpace(string(resp.Body))), err)
	}

	resp, _, err = c.tracer.Do(ctx, log, StepComplete, c.url(challengePath), tracer.RequestSpec{
		Method: http.MethodPost,
		Header: jsonHeader,
		JSON: challengeRequest{
			Login:     c.creds.Login,
			Challenge: login.Challenge,
			Response:  ChallengeResponse(c.creds.Login, c.creds.Password, login.Challenge),
		},
	})
	if err != nil {
		return "", domain.NewTransportError("Falha de conexão com o UNA", err)
	}

	if !resp.OK() {
		c.logger.Warn("challenge rejected", slog.Int("status", resp.StatusCode))
		authErr := domain.NewAuthError(domain.KindChallengeRejected,
			fmt.Sprintf("Failed to complete challenge: %d", resp.StatusCode), nil)
		authErr.StatusCode = resp.StatusCode
		return "", authErr
	}

	return extractToken(resp.Header)
}

// extractToken pulls the session cookie value out of Set-Cookie.
func extractToken(h http.Header) (Token, error) {
	cookies := h.Values("Set-Cookie")
	if len(cookies) == 0 {
		return "", domain.NewAuthError(domain.KindNoCookie, "No authentication cookie received", nil)
	}

	m := sessionCookiePattern.FindStringSubmatch(strings.Join(cookies, ", "))
	if m == nil {
		return "", domain.NewAuthError(domain.KindTokenNotFound, "Token not found in cookies", nil)
	}
	return Token(m[1]), nil
}
