package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
)

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessage(t *testing.T) {
	slot := &capture.PendingSlot{}
	r := New(Config{MaxBodyLength: 40, Pending: slot}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *api.RawMessage, 10)
	r.attach(ctx, out)
	h := r.Routes()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"accepted", `{"id":"w-1","messageBody":"Rs 10 debited","senderPhoneNumber":"HDFC-123","timestamp":1710388800000}`, http.StatusAccepted},
		{"malformed", `{"messageBody":`, http.StatusBadRequest},
		{"missing body", `{"senderPhoneNumber":"HDFC-123"}`, http.StatusBadRequest},
		{"body too long", `{"messageBody":"` + strings.Repeat("x", 41) + `"}`, http.StatusRequestEntityTooLarge},
		{"request too large", `{"messageBody":"` + strings.Repeat("x", maxRequestBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	require.Len(t, out, 1)
	msg := <-out
	assert.Equal(t, "w-1", msg.ID)
	assert.Equal(t, Source, msg.Source)

	_, ok := slot.Take()
	assert.False(t, ok, "no launch event was posted")
}

func TestHandleLaunchMessage(t *testing.T) {
	slot := &capture.PendingSlot{}
	r := New(Config{Pending: slot}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *api.RawMessage, 1)
	r.attach(ctx, out)

	rec := post(t, r.Routes(), `{"id":"w-9","messageBody":"Rs 5 credited","launch":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp acceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "w-9", resp.ID)

	pending, ok := slot.Take()
	require.True(t, ok)
	assert.Equal(t, "w-9", pending.ID)
}

func TestHandleMessageNotRunning(t *testing.T) {
	r := New(Config{}, nil)

	rec := post(t, r.Routes(), `{"messageBody":"Rs 5 credited"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	out := make(chan *api.RawMessage, 1)
	r.attach(context.Background(), out)
	r.detach()

	rec = post(t, r.Routes(), `{"messageBody":"Rs 5 credited"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, open := <-out
	assert.False(t, open)
}
