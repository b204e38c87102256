package messenger

import (
	"context"
	"math/rand"
	"time"

	"chatflow-backend/application/ports"
	"chatflow-backend/pkg/errors"

	"go.uber.org/zap"
)

// Channel limits enforced before a request leaves the process, so a
// generous flow definition degrades gracefully instead of bouncing
// off the platform validator.
const (
	maxQuickReplies      = 13
	maxQuickReplyTitle   = 20 // runes
	maxQuickReplyPayload = 1000
	maxAttempts          = 3
	baseBackoff          = 500 * time.Millisecond
)

// sender is the transport surface the dispatcher drives. *Client
// satisfies it; tests inject their own.
type sender interface {
	SendText(ctx context.Context, recipientID, text string, quickReplies []ports.QuickReply, accessToken string) (string, error)
	SendImage(ctx context.Context, recipientID, imageURL, accessToken string) (string, error)
}

// Dispatcher delivers outbound messages with bounded retries.
// Retryable failures (network, timeout, rate limit) back off
// exponentially with jitter, honoring a server-supplied Retry-After
// when it is longer; credential and recipient failures abort
// immediately.
type Dispatcher struct {
	client sender
	logger *zap.Logger

	// sleep is swapped in tests to keep retry timing observable.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates the retrying dispatcher.
func NewDispatcher(client *Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Send implements ports.Dispatcher. For a composite message the image
// goes out first; if the image cannot be delivered the text is not
// attempted, so the recipient never sees the caption without its
// picture.
func (d *Dispatcher) Send(ctx context.Context, recipientID string, msg ports.OutboundMessage, accessToken string) (*ports.DispatchResult, error) {
	quickReplies := sanitizeQuickReplies(msg.QuickReplies, d.logger)

	attempts := 0
	if msg.ImageURL != "" {
		_, n, err := d.withRetry(ctx, func(ctx context.Context) (string, error) {
			return d.client.SendImage(ctx, recipientID, msg.ImageURL, accessToken)
		})
		attempts += n
		if err != nil {
			return nil, errors.Wrap(err, "image dispatch failed")
		}
		if msg.Text == "" && len(quickReplies) == 0 {
			return &ports.DispatchResult{Attempts: attempts}, nil
		}
	}

	externalID, n, err := d.withRetry(ctx, func(ctx context.Context) (string, error) {
		return d.client.SendText(ctx, recipientID, msg.Text, quickReplies, accessToken)
	})
	attempts += n
	if err != nil {
		return nil, err
	}

	return &ports.DispatchResult{
		ExternalMessageID: externalID,
		Attempts:          attempts,
	}, nil
}

// withRetry runs op up to maxAttempts times and reports the attempt
// count alongside the outcome.
func (d *Dispatcher) withRetry(ctx context.Context, op func(ctx context.Context) (string, error)) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, err := op(ctx)
		if err == nil {
			return id, attempt, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			d.logger.Debug("dispatch failure is not retryable",
				zap.Error(err),
				zap.Int("attempt", attempt),
			)
			return "", attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt, err)
		d.logger.Debug("retrying dispatch",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return "", attempt, errors.NewTimeoutError("dispatch").WithCause(err)
		}
	}
	return "", maxAttempts, lastErr
}

// backoffDelay computes the wait before the next attempt: exponential
// from baseBackoff with up to 25% jitter, floored at the server's
// Retry-After when one was given.
func backoffDelay(attempt int, err error) time.Duration {
	delay := baseBackoff * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	delay += jitter

	if appErr := errors.GetAppError(err); appErr != nil && appErr.RetryAfter > delay {
		delay = appErr.RetryAfter
	}
	return delay
}

// sanitizeQuickReplies applies the channel caps: at most
// maxQuickReplies buttons, titles cut to maxQuickReplyTitle runes,
// buttons with oversized payloads dropped.
func sanitizeQuickReplies(in []ports.QuickReply, logger *zap.Logger) []ports.QuickReply {
	if len(in) == 0 {
		return nil
	}
	out := make([]ports.QuickReply, 0, len(in))
	for _, qr := range in {
		if len(out) == maxQuickReplies {
			logger.Warn("quick replies truncated to channel limit",
				zap.Int("configured", len(in)),
			)
			break
		}
		if len(qr.Payload) > maxQuickReplyPayload {
			logger.Warn("quick reply dropped, payload exceeds channel limit",
				zap.String("title", qr.Title),
				zap.Int("payloadLength", len(qr.Payload)),
			)
			continue
		}
		if runes := []rune(qr.Title); len(runes) > maxQuickReplyTitle {
			qr.Title = string(runes[:maxQuickReplyTitle])
		}
		out = append(out, qr)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
