package domain

import (
	"fmt"

	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

// RelayResult is the envelope returned for one recipient.
type RelayResult struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorKind       ErrorKind      `json:"errorKind,omitempty"`
	Data            any            `json:"data,omitempty"`
	Logs            []tracer.Entry `json:"logs"`
	TotalDurationMs int64          `json:"totalDurationMs"`
}

// OutcomeStatus classifies a finished broadcast.
type OutcomeStatus string

const (
	OutcomeAllSucceeded OutcomeStatus = "all_succeeded"
	OutcomePartial      OutcomeStatus = "partial"
	OutcomeAllFailed    OutcomeStatus = "all_failed"
)

// RecipientOutcome is the per-recipient line of a broadcast.
type RecipientOutcome struct {
	Recipient Recipient   `json:"recipient"`
	Result    RelayResult `json:"result"`
}

// BroadcastOutcome aggregates every relay result of one submission.
type BroadcastOutcome struct {
	Success         bool               `json:"success"`
	Status          OutcomeStatus      `json:"status"`
	Message         string             `json:"message"`
	Summary         string             `json:"summary"`
	SuccessCount    int                `json:"successCount"`
	ErrorCount      int                `json:"errorCount"`
	Logs            []tracer.Entry     `json:"logs"`
	TotalDurationMs int64              `json:"totalDurationMs"`
	Results         []RecipientOutcome `json:"results"`
}

// NewBroadcastOutcome returns an empty outcome ready for Record calls.
func NewBroadcastOutcome(capacity int) *BroadcastOutcome {
	return &BroadcastOutcome{
		Logs:    make([]tracer.Entry, 0, capacity*3),
		Results: make([]RecipientOutcome, 0, capacity),
	}
}

// Record folds one recipient's result into the aggregate. Each log entry is
// prefixed with the recipient's display name.
func (o *BroadcastOutcome) Record(rc Recipient, res RelayResult) {
	prefix := fmt.Sprintf("[%s] ", rc.Name)
	for _, e := range res.Logs {
		o.Logs = append(o.Logs, e.WithStepPrefix(prefix))
	}
	o.TotalDurationMs += res.TotalDurationMs
	if res.Success {
		o.SuccessCount++
	} else {
		o.ErrorCount++
	}
	o.Results = append(o.Results, RecipientOutcome{Recipient: rc, Result: res})
}

// Finalize computes the overall flag and the human-readable summaries.
func (o *BroadcastOutcome) Finalize() {
	o.Success = o.ErrorCount == 0

	o.Message = fmt.Sprintf("Enviado para %d viatura(s)", o.SuccessCount)
	if o.ErrorCount > 0 {
		o.Message += fmt.Sprintf(", %d erro(s)", o.ErrorCount)
	}

	switch {
	case o.ErrorCount == 0:
		o.Status = OutcomeAllSucceeded
		o.Summary = fmt.Sprintf("Enviado com sucesso para %d viatura(s)!", o.SuccessCount)
	case o.SuccessCount > 0:
		o.Status = OutcomePartial
		o.Summary = fmt.Sprintf("Enviado para %d viatura(s), mas %d falharam.", o.SuccessCount, o.ErrorCount)
	default:
		o.Status = OutcomeAllFailed
		o.Summary = "Erro ao enviar para todas as viaturas."
	}
}
