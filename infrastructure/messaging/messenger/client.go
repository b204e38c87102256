// Package messenger implements the outbound channel transport: a
// Graph API client with failure classification and a dispatcher that
// applies the retry policy.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"chatflow-backend/application/ports"
	"chatflow-backend/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// sendRequest is the Graph API /me/messages payload.
type sendRequest struct {
	Recipient recipient `json:"recipient"`
	Message   message   `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text         string           `json:"text,omitempty"`
	Attachment   *attachment      `json:"attachment,omitempty"`
	QuickReplies []wireQuickReply `json:"quick_replies,omitempty"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type attachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

type wireQuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type sendResponse struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	Error       *apiError
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

// Client talks to the messenger platform's Send API. Calls run
// through a circuit breaker so a hard platform outage stops producing
// doomed requests quickly; classified non-retryable API errors do not
// trip the breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a Send API client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "messenger-send",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Credential and recipient failures say nothing about
			// platform health, only retryable ones count.
			return err == nil || !errors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		logger:  logger,
	}
}

// SendText delivers a text message with optional quick replies.
func (c *Client) SendText(ctx context.Context, recipientID, text string, quickReplies []ports.QuickReply, accessToken string) (string, error) {
	msg := message{Text: text}
	for _, qr := range quickReplies {
		msg.QuickReplies = append(msg.QuickReplies, wireQuickReply{
			ContentType: "text",
			Title:       qr.Title,
			Payload:     qr.Payload,
		})
	}
	return c.send(ctx, recipientID, msg, accessToken)
}

// SendImage delivers a single image attachment.
func (c *Client) SendImage(ctx context.Context, recipientID, imageURL, accessToken string) (string, error) {
	msg := message{
		Attachment: &attachment{
			Type:    "image",
			Payload: attachmentPayload{URL: imageURL, IsReusable: true},
		},
	}
	return c.send(ctx, recipientID, msg, accessToken)
}

func (c *Client) send(ctx context.Context, recipientID string, msg message, accessToken string) (string, error) {
	body, err := json.Marshal(sendRequest{
		Recipient: recipient{ID: recipientID},
		Message:   msg,
	})
	if err != nil {
		return "", errors.NewInternalError("marshal send request").WithCause(err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doSend(ctx, body, accessToken)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return "", errors.NewNetworkError("send circuit open", err)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doSend(ctx context.Context, body []byte, accessToken string) (string, error) {
	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternalError("build send request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.NewNetworkError("send request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewNetworkError("read send response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var ok sendResponse
		if err := json.Unmarshal(respBody, &ok); err != nil {
			return "", errors.NewNetworkError("decode send response", err)
		}
		return ok.MessageID, nil
	}

	return "", c.classifyFailure(resp, respBody)
}

// classifyFailure maps a non-2xx Send API response onto the error
// taxonomy. Platform error codes take precedence over the HTTP
// status; a Retry-After header is attached to rate-limit errors.
func (c *Client) classifyFailure(resp *http.Response, body []byte) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(body, &envelope)

	if apiErr := envelope.Error; apiErr != nil {
		code := strconv.Itoa(apiErr.Code)
		switch apiErr.Code {
		case 190, 102:
			// OAuth failures: the page access token is invalid or
			// expired. Retrying cannot help.
			return errors.NewCredentialError(apiErr.Message).WithCode(code)
		case 4, 613, 80007:
			return errors.NewRateLimitError(apiErr.Message).
				WithCode(code).
				WithRetryAfter(retryAfter(resp))
		case 10, 100, 200, 551:
			// Recipient unavailable, outside messaging window, or
			// permission denied for this user.
			return errors.NewRecipientError(apiErr.Message).WithCode(code)
		}
		c.logger.Debug("unclassified platform error",
			zap.Int("code", apiErr.Code),
			zap.Int("subcode", apiErr.Subcode),
			zap.String("fbtraceID", apiErr.FBTraceID),
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError("send rate limited").
			WithRetryAfter(retryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errors.NewCredentialError(fmt.Sprintf("send rejected with status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return errors.NewNetworkError(fmt.Sprintf("send failed with status %d", resp.StatusCode), nil)
	default:
		return errors.NewRecipientError(fmt.Sprintf("send failed with status %d", resp.StatusCode))
	}
}

// retryAfter parses the Retry-After header, supporting both the
// delta-seconds and HTTP-date forms. Zero means no hint.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
