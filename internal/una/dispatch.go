package una

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

type textMessage struct {
	ID   string `json:"id"`
	Chat string `json:"chat"`
	Text string `json:"text"`
}

type textMessageRequest struct {
	ChatMessage textMessage `json:"chatMessage"`
}

// attachmentMessage is the JSON descriptor sent alongside a file.
type attachmentMessage struct {
	ID   string `json:"id"`
	To   string `json:"to"`
	Text string `json:"text,omitempty"`
}

// DeliveryMode names the endpoint a payload was sent through.
type DeliveryMode string

const (
	ModeText DeliveryMode = "text"
	ModeFile DeliveryMode = "file"
)

// SendResult is the outcome of one accepted send.
type SendResult struct {
	MessageID string
	Mode      DeliveryMode
	// Response is the upstream reply, decoded when it was JSON.
	Response any
}

// SendText posts a plain text message to recipientID.
func (c *Client) SendText(ctx context.Context, log *tracer.Log, token Token, recipientID, text string) (*SendResult, error) {
	id := c.newID()

	resp, _, err := c.tracer.Do(ctx, log, StepSendText, c.url(messagesPath), tracer.RequestSpec{
		Method: http.MethodPost,
		Header: http.Header{
			"Accept":       {"application/json"},
			"Content-Type": {"application/json"},
			"Cookie":       {sessionCookie(token)},
		},
		JSON: textMessageRequest{ChatMessage: textMessage{ID: id, Chat: recipientID, Text: text}},
	})
	if err != nil {
		return nil, domain.NewTransportError("Falha de conexão com o UNA", err)
	}
	if !resp.OK() {
		c.logger.Warn("text message rejected",
			slog.String("recipient_id", recipientID),
			slog.Int("status", resp.StatusCode))
		return nil, domain.NewDeliveryError(domain.KindTextSendFailed, "Falha ao enviar mensagem", resp.StatusCode)
	}

	return &SendResult{MessageID: id, Mode: ModeText, Response: resp.Parsed.Value()}, nil
}

// SendFile posts file to recipientID, with caption as the message text when
// it is not blank. The file part is written before the chatMessage part.
func (c *Client) SendFile(ctx context.Context, log *tracer.Log, token Token, recipientID string, file *domain.Attachment, caption string) (*SendResult, error) {
	id := c.newID()

	descriptor := attachmentMessage{ID: id, To: recipientID}
	step := StepSendFile
	if text := strings.TrimSpace(caption); text != "" {
		descriptor.Text = text
		step = StepSendFileCaption
	}

	encoded, err := json.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("marshal chat message: %w", err)
	}

	form := tracer.NewMultipartForm().
		AddFile("file", tracer.FilePart{
			FileName:    file.Name,
			ContentType: file.ContentType,
			Data:        file.Data,
		}).
		AddField("chatMessage", string(encoded))

	resp, _, err := c.tracer.Do(ctx, log, step, c.url(attachmentPath), tracer.RequestSpec{
		Method: http.MethodPost,
		Header: http.Header{"Cookie": {sessionCookie(token)}},
		Form:   form,
	})
	if err != nil {
		return nil, domain.NewTransportError("Falha de conexão com o UNA", err)
	}
	if !resp.OK() {
		c.logger.Warn("file message rejected",
			slog.String("recipient_id", recipientID),
			slog.Int("status", resp.StatusCode))
		return nil, domain.NewDeliveryError(domain.KindFileSendFailed, "Falha ao enviar arquivo", resp.StatusCode)
	}

	return &SendResult{MessageID: id, Mode: ModeFile, Response: resp.Parsed.Value()}, nil
}

// Deliver picks the endpoint for payload: a file always goes through the
// attachment endpoint with the caption embedded; text alone goes through the
// text endpoint.
func (c *Client) Deliver(ctx context.Context, log *tracer.Log, token Token, recipientID string, payload domain.Payload) (*SendResult, error) {
	switch {
	case payload.HasFile():
		return c.SendFile(ctx, log, token, recipientID, payload.File(), payload.Caption())
	case payload.Caption() != "":
		return c.SendText(ctx, log, token, recipientID, payload.Caption())
	default:
		return nil, domain.EmptyPayload()
	}
}
