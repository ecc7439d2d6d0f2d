// Package relay runs the per-recipient pipeline: authenticate, dispatch,
// and fold everything that happened into a RelayResult.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/metrics"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
	"github.com/gmfloripa/patrol-relay/internal/una"
)

// State is a step of the relay state machine.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateDispatching
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateDispatching:
		return "dispatching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dispatcher delivers a payload with an already acquired token.
type Dispatcher interface {
	Deliver(ctx context.Context, log *tracer.Log, token una.Token, recipientID string, payload domain.Payload) (*una.SendResult, error)
}

// Request is one relay submission for a single recipient.
type Request struct {
	RecipientID string
	File        *domain.Attachment
	Message     string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTransitionHook is called on every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(s *Service) {
		s.onTransition = fn
	}
}

// Service relays payloads to single recipients.
type Service struct {
	tokens       una.TokenSource
	dispatcher   Dispatcher
	logger       *slog.Logger
	onTransition func(from, to State)
	now          func() time.Time
}

// NewService creates a relay service.
func NewService(tokens una.TokenSource, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		tokens:     tokens,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run tracks the state of one invocation.
type run struct {
	svc         *Service
	ctx         context.Context
	recipientID string
	state       State
}

func (r *run) transition(to State) {
	r.svc.logger.DebugContext(r.ctx, "relay state changed",
		slog.String("recipient_id", r.recipientID),
		slog.String("from", r.state.String()),
		slog.String("to", to.String()))
	if r.svc.onTransition != nil {
		r.svc.onTransition(r.state, to)
	}
	r.state = to
}

// Relay validates req, authenticates and dispatches once. It never returns
// an error: every failure is folded into the result together with the trace
// entries captured up to that point.
func (s *Service) Relay(ctx context.Context, req Request) domain.RelayResult {
	start := s.now()
	log := tracer.NewLog()
	r := &run{svc: s, ctx: ctx, recipientID: req.RecipientID}

	fail := func(err error) domain.RelayResult {
		if r.state != StateIdle {
			r.transition(StateFailed)
		}
		elapsed := s.now().Sub(start)
		res := domain.RelayResult{
			Success:         false,
			Error:           domain.MessageOf(err),
			ErrorKind:       domain.KindOf(err),
			Logs:            log.Entries(),
			TotalDurationMs: elapsed.Milliseconds(),
		}
		s.logger.WarnContext(ctx, "relay failed",
			slog.String("recipient_id", req.RecipientID),
			slog.String("error_kind", string(res.ErrorKind)),
			slog.String("error", err.Error()),
			slog.Int("trace_entries", len(res.Logs)))
		metrics.ObserveRelay(kindLabel(req), false, elapsed)
		return res
	}

	recipientID := strings.TrimSpace(req.RecipientID)
	if recipientID == "" {
		return fail(domain.MissingRecipient())
	}
	payload, err := domain.NewPayload(req.File, req.Message)
	if err != nil {
		return fail(err)
	}

	r.transition(StateAuthenticating)
	token, err := s.tokens.Token(ctx, log)
	if err != nil {
		return fail(err)
	}

	r.transition(StateDispatching)
	sent, err := s.dispatcher.Deliver(ctx, log, token, recipientID, payload)
	if err != nil {
		if re, ok := domain.AsRelayError(err); ok && re.StatusCode == http.StatusUnauthorized {
			if ierr := s.tokens.Invalidate(ctx); ierr != nil {
				s.logger.WarnContext(ctx, "token invalidation failed", slog.String("error", ierr.Error()))
			}
		}
		return fail(err)
	}

	r.transition(StateSucceeded)
	elapsed := s.now().Sub(start)
	res := domain.RelayResult{
		Success:         true,
		Message:         successMessage(payload.Kind()),
		Data:            resultData(sent),
		Logs:            log.Entries(),
		TotalDurationMs: elapsed.Milliseconds(),
	}
	s.logger.InfoContext(ctx, "relay succeeded",
		slog.String("recipient_id", recipientID),
		slog.String("payload", payload.Kind().String()),
		slog.String("message_id", sent.MessageID),
		slog.Int64("duration_ms", res.TotalDurationMs))
	metrics.ObserveRelay(payload.Kind().String(), true, elapsed)
	return res
}

func successMessage(kind domain.PayloadKind) string {
	switch kind {
	case domain.PayloadFileWithCaption:
		return "Arquivo e mensagem enviados com sucesso"
	case domain.PayloadFile:
		return "Arquivo enviado com sucesso"
	default:
		return "Mensagem enviada com sucesso"
	}
}

func resultData(sent *una.SendResult) map[string]any {
	if sent.Mode == una.ModeFile {
		return map[string]any{"fileResult": sent.Response}
	}
	return map[string]any{"textResult": sent.Response}
}

// kindLabel classifies a request that may not have produced a payload.
func kindLabel(req Request) string {
	switch {
	case req.File.Size() > 0 && strings.TrimSpace(req.Message) != "":
		return domain.PayloadFileWithCaption.String()
	case req.File.Size() > 0:
		return domain.PayloadFile.String()
	case strings.TrimSpace(req.Message) != "":
		return domain.PayloadText.String()
	default:
		return "invalid"
	}
}
