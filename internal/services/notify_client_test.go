package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyClientForwardsEvent(t *testing.T) {
	recipient := uuid.New()
	var got notifyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/notify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewNotifyClient(srv.URL+"/", zap.NewNop())
	err := c.Forward(context.Background(), events.Event{
		Type:             events.EventDisputeOpened,
		RecipientUserIDs: []uuid.UUID{recipient},
		RelatedEntityID:  uuid.New(),
		Params:           map[string]any{"opened_by": "buyer"},
	})
	require.NoError(t, err)
	assert.Equal(t, events.EventDisputeOpened, got.Type)
	assert.Equal(t, []string{recipient.String()}, got.RecipientUserIDs)
	assert.Equal(t, "buyer", got.Params["opened_by"])
}

func TestNotifyClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown recipient", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewNotifyClient(srv.URL, zap.NewNop())
	err := c.Forward(context.Background(), events.Event{Type: events.EventChatOpened, RecipientUserIDs: []uuid.UUID{uuid.New()}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
