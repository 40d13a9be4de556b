package mailbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGraphFetchNew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/users/cr@airline.test/mailFolders/Complaints/messages", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("$top"))
		assert.Equal(t, "receivedDateTime desc", r.URL.Query().Get("$orderby"))
		_, _ = w.Write([]byte(`{"value":[{"id":"AAMk1","subject":"Delayed","body":{"contentType":"text","content":"PNR ABC123"},
			"from":{"emailAddress":{"address":"pax@example.com"}},"receivedDateTime":"2025-01-10T08:00:00Z"}]}`))
	}))
	defer srv.Close()

	gw := NewGraphGateway(GraphConfig{BaseURL: srv.URL, AccessToken: "token-1", TargetMailbox: "cr@airline.test"}, zap.NewNop())
	msgs, err := gw.FetchNew(context.Background(), "Complaints", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "AAMk1", msgs[0].ID)
	assert.Equal(t, "pax@example.com", msgs[0].Sender)
	assert.Equal(t, "PNR ABC123", msgs[0].Body)
	assert.True(t, msgs[0].ReceivedAt.Equal(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)))
}

func TestGraphCreateOutbound(t *testing.T) {
	var draft graphDraft
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/baseopsdelhi@airline.test/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"draft-9"}`))
	}))
	defer srv.Close()

	gw := NewGraphGateway(GraphConfig{BaseURL: srv.URL + "/", AccessToken: "t"}, zap.NewNop())
	id, err := gw.CreateOutbound(context.Background(), OutboundRequest{
		Mailbox: "baseopsdelhi@airline.test",
		Subject: "[Case: CMP-2025-0001] Investigation",
		Body:    "<p>grid</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "draft-9", id)
	assert.Equal(t, "HTML", draft.Body.ContentType)
	require.Len(t, draft.ToRecipients, 1)
	assert.Equal(t, "baseopsdelhi@airline.test", draft.ToRecipients[0].EmailAddress.Address)
}

func TestGraphErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"InvalidAuthenticationToken"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	gw := NewGraphGateway(GraphConfig{BaseURL: srv.URL, TargetMailbox: "x"}, zap.NewNop())
	_, err := gw.FetchNew(context.Background(), "Resolutions", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMemoryGatewayOrdersAndLimits(t *testing.T) {
	gw := NewMemoryGateway()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	gw.Deliver("Complaints",
		Message{ID: "b", ReceivedAt: base.Add(time.Hour)},
		Message{ID: "a", ReceivedAt: base},
		Message{ID: "c", ReceivedAt: base.Add(2 * time.Hour)},
	)

	msgs, err := gw.FetchNew(context.Background(), "Complaints", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)

	recipient := "pax@example.com"
	id, err := gw.CreateOutbound(context.Background(), OutboundRequest{Mailbox: "cx@airline.test", Recipient: &recipient})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id)
	assert.Equal(t, "pax@example.com", gw.Outbox()[0].to())
}
