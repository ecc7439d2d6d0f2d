// Package una talks to the UNA chat platform: the challenge-response login
// and the text and attachment message endpoints.
package una

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

const (
	defaultBaseURL = "https://consultor.saas.digitro.cloud"

	loginPath      = "/una/auth/v1/integration/login"
	challengePath  = "/una/auth/v1/integration/challenge"
	messagesPath   = "/una/history/v1/chatMessages"
	attachmentPath = "/una/history/v1/chatMessages/attachment"

	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "__iunasid"
)

// Trace step labels, in pipeline order.
const (
	StepChallenge       = "1. Get Authentication Challenge"
	StepComplete        = "2. Complete Authentication Challenge"
	StepSendText        = "3. Send Text Message"
	StepSendFile        = "3. Send File Attachment"
	StepSendFileCaption = "3. Send File with Message"
)

// Credentials identify the integration user.
type Credentials struct {
	Login    string
	Password string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTracer sets the tracer used for every call.
func WithTracer(t *tracer.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMessageIDs overrides message id generation.
func WithMessageIDs(fn func() string) ClientOption {
	return func(c *Client) {
		c.newID = fn
	}
}

// Client is a hand-written client for the UNA integration API.
type Client struct {
	creds   Credentials
	baseURL string
	tracer  *tracer.Tracer
	logger  *slog.Logger
	newID   func() string
}

// NewClient creates a new UNA client.
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		creds:   creds,
		baseURL: defaultBaseURL,
		logger:  slog.Default(),
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = tracer.New()
	}
	return c
}

// Login returns the configured login identifier.
func (c *Client) Login() string {
	return c.creds.Login
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// sessionCookie formats the Cookie header value with the trailing semicolon
// the platform documents.
func sessionCookie(token Token) string {
	return SessionCookieName + "=" + string(token) + ";"
}
