// Package broadcast fans one payload out to many recipients, one relay call
// at a time, and aggregates the results.
package broadcast

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/metrics"
	"github.com/gmfloripa/patrol-relay/internal/relay"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

// Synthesized trace values for a recipient whose relay call produced no
// result at all.
const (
	ConnectionErrorStep       = "Erro de conexão"
	ConnectionErrorStatusText = "Connection Error"
)

// Relayer performs the relay for a single recipient. A returned error means
// no RelayResult could be obtained.
type Relayer interface {
	Relay(ctx context.Context, recipientID string, payload domain.Payload) (domain.RelayResult, error)
}

// ProgressFunc is called before each recipient is attempted. current is
// 1-based.
type ProgressFunc func(current, total int, rc domain.Recipient)

// Option configures a Controller.
type Option func(*Controller)

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Controller) {
		c.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithEndpoint sets the URL recorded in synthesized connection errors.
func WithEndpoint(endpoint string) Option {
	return func(c *Controller) {
		c.endpoint = endpoint
	}
}

// Controller runs broadcasts sequentially.
type Controller struct {
	relayer  Relayer
	roster   *domain.RosterHolder
	progress ProgressFunc
	logger   *slog.Logger
	endpoint string
	now      func() time.Time
}

// NewController creates a controller resolving display names from roster.
func NewController(relayer Relayer, roster *domain.RosterHolder, opts ...Option) *Controller {
	c := &Controller{
		relayer:  relayer,
		roster:   roster,
		logger:   slog.Default(),
		endpoint: relay.SendFilePath,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Broadcast relays payload to every recipient in order. It only returns an
// error when there is nothing to do: an empty recipient list or an empty
// payload. Individual failures are recorded in the outcome and never stop
// the loop.
func (c *Controller) Broadcast(ctx context.Context, recipientIDs []string, file *domain.Attachment, message string) (*domain.BroadcastOutcome, error) {
	ids := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, domain.NoRecipients()
	}

	payload, err := domain.NewPayload(file, message)
	if err != nil {
		return nil, err
	}

	roster := c.roster.Roster()
	outcome := domain.NewBroadcastOutcome(len(ids))

	c.logger.InfoContext(ctx, "broadcast started",
		slog.Int("recipients", len(ids)),
		slog.String("payload", payload.Kind().String()))

	for i, id := range ids {
		rc := c.resolve(roster, id)
		if c.progress != nil {
			c.progress(i+1, len(ids), rc)
		}

		res, err := c.relayer.Relay(ctx, id, payload)
		if err != nil {
			c.logger.WarnContext(ctx, "relay call failed",
				slog.String("recipient_id", id),
				slog.String("error", err.Error()))
			res = c.connectionError(err)
		}

		outcome.Record(rc, res)
		metrics.IncBroadcastRecipient(res.Success)
	}

	outcome.Finalize()
	metrics.IncBroadcast(string(outcome.Status))

	c.logger.InfoContext(ctx, "broadcast finished",
		slog.String("status", string(outcome.Status)),
		slog.Int("succeeded", outcome.SuccessCount),
		slog.Int("failed", outcome.ErrorCount),
		slog.Int64("duration_ms", outcome.TotalDurationMs))

	return outcome, nil
}

func (c *Controller) resolve(roster *domain.Roster, id string) domain.Recipient {
	if roster != nil {
		if rc, ok := roster.Lookup(id); ok {
			if rc.Name == "" {
				rc.Name = id
			}
			return rc
		}
	}
	return domain.Recipient{ID: id, Name: id}
}

func (c *Controller) connectionError(err error) domain.RelayResult {
	return domain.RelayResult{
		Success:   false,
		Error:     ConnectionErrorStep,
		ErrorKind: domain.KindTransport,
		Logs: []tracer.Entry{{
			Step:               ConnectionErrorStep,
			URL:                c.endpoint,
			Method:             "POST",
			RequestHeaders:     map[string]string{},
			ResponseStatus:     0,
			ResponseStatusText: ConnectionErrorStatusText,
			ResponseHeaders:    map[string]string{},
			Timestamp:          c.now(),
		}},
	}
}
