package messenger

import (
	"context"
	"strings"
	"testing"
	"time"

	"chatflow-backend/application/ports"
	"chatflow-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSender scripts one error per call; nil means success.
type fakeSender struct {
	textErrs  []error
	imageErrs []error

	textCalls  int
	imageCalls int

	lastText         string
	lastQuickReplies []ports.QuickReply
}

func (s *fakeSender) SendText(_ context.Context, _, text string, quickReplies []ports.QuickReply, _ string) (string, error) {
	call := s.textCalls
	s.textCalls++
	s.lastText = text
	s.lastQuickReplies = quickReplies
	if call < len(s.textErrs) && s.textErrs[call] != nil {
		return "", s.textErrs[call]
	}
	return "mid-text", nil
}

func (s *fakeSender) SendImage(_ context.Context, _, _, _ string) (string, error) {
	call := s.imageCalls
	s.imageCalls++
	if call < len(s.imageErrs) && s.imageErrs[call] != nil {
		return "", s.imageErrs[call]
	}
	return "mid-image", nil
}

func newTestDispatcher(client sender) (*Dispatcher, *[]time.Duration) {
	var slept []time.Duration
	d := &Dispatcher{
		client: client,
		logger: zap.NewNop(),
		sleep: func(_ context.Context, delay time.Duration) error {
			slept = append(slept, delay)
			return nil
		},
	}
	return d, &slept
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	client := &fakeSender{}
	d, slept := newTestDispatcher(client)

	result, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.NoError(t, err)

	assert.Equal(t, "mid-text", result.ExternalMessageID)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, *slept)
}

func TestSendRetriesNetworkErrorThenSucceeds(t *testing.T) {
	client := &fakeSender{textErrs: []error{
		errors.NewNetworkError("connection reset", nil),
		nil,
	}}
	d, slept := newTestDispatcher(client)

	result, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempts)
	require.Len(t, *slept, 1)
	// First retry: base backoff plus at most 25% jitter.
	assert.GreaterOrEqual(t, (*slept)[0], 500*time.Millisecond)
	assert.Less(t, (*slept)[0], 650*time.Millisecond)
}

func TestSendHonorsRetryAfterFloor(t *testing.T) {
	client := &fakeSender{textErrs: []error{
		errors.NewRateLimitError("throttled").WithRetryAfter(2 * time.Second),
		nil,
	}}
	d, slept := newTestDispatcher(client)

	result, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempts)
	require.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], 2*time.Second)
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	netErr := errors.NewNetworkError("unreachable", nil)
	client := &fakeSender{textErrs: []error{netErr, netErr, netErr}}
	d, slept := newTestDispatcher(client)

	_, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.Error(t, err)

	assert.Equal(t, 3, client.textCalls)
	assert.Len(t, *slept, 2)
}

func TestSendCredentialErrorDoesNotRetry(t *testing.T) {
	client := &fakeSender{textErrs: []error{errors.NewCredentialError("token expired")}}
	d, slept := newTestDispatcher(client)

	_, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.Error(t, err)

	assert.True(t, errors.IsCredential(err))
	assert.Equal(t, 1, client.textCalls)
	assert.Empty(t, *slept)
}

func TestSendRecipientErrorDoesNotRetry(t *testing.T) {
	client := &fakeSender{textErrs: []error{errors.NewRecipientError("user unavailable")}}
	d, slept := newTestDispatcher(client)

	_, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.Error(t, err)
	assert.Equal(t, 1, client.textCalls)
	assert.Empty(t, *slept)
}

func TestSendCancelledDuringBackoff(t *testing.T) {
	client := &fakeSender{textErrs: []error{errors.NewNetworkError("flaky", nil), nil}}
	d := &Dispatcher{
		client: client,
		logger: zap.NewNop(),
		sleep: func(_ context.Context, _ time.Duration) error {
			return context.Canceled
		},
	}

	_, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{Text: "Hallo"}, "token")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.Equal(t, 1, client.textCalls)
}

func TestSendImageFirstThenText(t *testing.T) {
	client := &fakeSender{}
	d, _ := newTestDispatcher(client)

	result, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{
		Text:     "Unsere Speisekarte",
		ImageURL: "https://cdn.example.com/menu.jpg",
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, 1, client.imageCalls)
	assert.Equal(t, 1, client.textCalls)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "mid-text", result.ExternalMessageID)
}

func TestSendImageFailureShortCircuitsText(t *testing.T) {
	client := &fakeSender{imageErrs: []error{errors.NewRecipientError("blocked")}}
	d, _ := newTestDispatcher(client)

	_, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{
		Text:     "Unsere Speisekarte",
		ImageURL: "https://cdn.example.com/menu.jpg",
	}, "token")
	require.Error(t, err)

	assert.Equal(t, 1, client.imageCalls)
	assert.Zero(t, client.textCalls, "text must not go out without its image")
}

func TestSendImageOnly(t *testing.T) {
	client := &fakeSender{}
	d, _ := newTestDispatcher(client)

	result, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{
		ImageURL: "https://cdn.example.com/menu.jpg",
	}, "token")
	require.NoError(t, err)

	assert.Equal(t, 1, client.imageCalls)
	assert.Zero(t, client.textCalls)
	assert.Equal(t, 1, result.Attempts)
}

func TestSanitizeQuickRepliesCapsCount(t *testing.T) {
	in := make([]ports.QuickReply, 20)
	for i := range in {
		in[i] = ports.QuickReply{Title: "Option", Payload: "p"}
	}

	out := sanitizeQuickReplies(in, zap.NewNop())
	assert.Len(t, out, maxQuickReplies)
}

func TestSanitizeQuickRepliesTruncatesTitle(t *testing.T) {
	in := []ports.QuickReply{{Title: "Reservierung für größere Gruppen", Payload: "p"}}

	out := sanitizeQuickReplies(in, zap.NewNop())
	require.Len(t, out, 1)
	runes := []rune(out[0].Title)
	assert.Len(t, runes, maxQuickReplyTitle)
	// Rune-safe truncation: no broken UTF-8 at the cut.
	assert.True(t, strings.HasPrefix("Reservierung für größere Gruppen", out[0].Title))
}

func TestSanitizeQuickRepliesDropsOversizedPayload(t *testing.T) {
	in := []ports.QuickReply{
		{Title: "Ok", Payload: strings.Repeat("x", maxQuickReplyPayload+1)},
		{Title: "Weiter", Payload: "flow:f1:node:n1"},
	}

	out := sanitizeQuickReplies(in, zap.NewNop())
	require.Len(t, out, 1)
	assert.Equal(t, "Weiter", out[0].Title)
}

func TestSanitizedQuickRepliesReachTheWire(t *testing.T) {
	client := &fakeSender{}
	d, _ := newTestDispatcher(client)

	in := make([]ports.QuickReply, 15)
	for i := range in {
		in[i] = ports.QuickReply{Title: "Option", Payload: "p"}
	}

	_, err := d.Send(context.Background(), "user-1", ports.OutboundMessage{
		Text:         "Bitte wählen",
		QuickReplies: in,
	}, "token")
	require.NoError(t, err)
	assert.Len(t, client.lastQuickReplies, maxQuickReplies)
}
