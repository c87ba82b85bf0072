// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testServer struct {
	store  *memStore
	router http.Handler
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	store := newMemStore()
	broadcaster := NewBroadcaster(logger)
	svc := NewSyncService(store, &ServiceConfig{AppName: "fieldsync-test", MaxBatchSize: 100}, broadcaster, logger)

	jwtAuth := NewJWTAuth("test-secret", logger)
	token, err := jwtAuth.GenerateToken("technician:jkowalski", "desktop-01", time.Hour)
	require.NoError(t, err)

	handlers := NewHTTPHandlers(svc, broadcaster, logger)
	return &testServer{
		store:  store,
		router: NewRouter(handlers, jwtAuth),
		token:  token,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHTTPSyncClients(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/sync/clients", []map[string]any{
		{"external_id": "C1", "name": "Jan Kowalski", "phone": "600111222"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[BatchResponse](t, rec)
	require.True(t, resp.Success)
	require.Equal(t, UpsertStats{Inserted: 1}, resp.Stats)
	require.Equal(t, 1, ts.store.count(KindClient))
}

func TestHTTPSyncConflictResponse(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/sync/devices", []map[string]any{
		{"external_id": "D1", "client_external_id": "C404", "serial_number": "SN-001"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[ConflictResponse](t, rec)
	require.False(t, resp.Success)
	require.Equal(t, ErrCodeQueuePaused, resp.Error)
	require.Len(t, resp.Conflicts, 1)
	require.Equal(t, ReasonClientNotFound, resp.Conflicts[0].Reason)
}

func TestHTTPAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sync/clients", bytes.NewBufferString("[]"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/sync/clients", bytes.NewBufferString("[]"))
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The health probe stays open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPPendingChangeWorkflow(t *testing.T) {
	ts := newTestServer(t)
	clientID := ts.store.seedEntity(KindClient, "C1", map[string]any{"name": "Jan", "phone": "600111222"})

	rec := ts.do(t, http.MethodPost, "/pending-changes", ProposeChangeRequest{
		EntityType: "client",
		EntityID:   clientID,
		Patch:      map[string]any{"phone": "600999888"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	pc := decodeBody[PendingChange](t, rec)
	require.Equal(t, PendingStatusPending, pc.Status)
	require.Equal(t, "technician:jkowalski", pc.ProposedBy) // from the JWT sub claim

	listRec := ts.do(t, http.MethodGet, "/pending-changes", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	list := decodeBody[PendingChangeListResponse](t, listRec)
	require.Len(t, list.PendingChanges, 1)

	acceptRec := ts.do(t, http.MethodPost, fmt.Sprintf("/pending-changes/%s/accept", pc.ID), nil)
	require.Equal(t, http.StatusOK, acceptRec.Code)
	require.Equal(t, "600999888", ts.store.byID(KindClient, clientID).fields["phone"])

	// Second accept: already decided.
	acceptRec = ts.do(t, http.MethodPost, fmt.Sprintf("/pending-changes/%s/accept", pc.ID), nil)
	require.Equal(t, http.StatusConflict, acceptRec.Code)
	errResp := decodeBody[ErrorResponse](t, acceptRec)
	require.Equal(t, "already_decided", errResp.Error)
}

func TestHTTPAcceptOnDeletedEntity(t *testing.T) {
	ts := newTestServer(t)
	clientID := ts.store.seedEntity(KindClient, "C1", map[string]any{"name": "Jan"})

	rec := ts.do(t, http.MethodPost, "/pending-changes", ProposeChangeRequest{
		EntityType: "client",
		EntityID:   clientID,
		Patch:      map[string]any{"phone": "600999888"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	pc := decodeBody[PendingChange](t, rec)

	ts.store.deleteEntity(KindClient, clientID)

	acceptRec := ts.do(t, http.MethodPost, fmt.Sprintf("/pending-changes/%s/accept", pc.ID), nil)
	require.Equal(t, http.StatusNotFound, acceptRec.Code)
	errResp := decodeBody[ErrorResponse](t, acceptRec)
	require.Equal(t, "entity_not_found", errResp.Error)
	require.Equal(t, PendingStatusRejected, ts.store.pendingByID(pc.ID).Status)
}

func TestHTTPOrderStatus(t *testing.T) {
	ts := newTestServer(t)
	orderID := ts.store.seedEntity(KindOrder, "O1", map[string]any{
		"order_number": "ZL-2025-0001",
		"status":       OrderStatusAssigned,
	})

	rec := ts.do(t, http.MethodPost, "/orders/ZL-2025-0001/status", OrderStatusRequest{
		Status: OrderStatusInProgress,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, OrderStatusInProgress, ts.store.byID(KindOrder, orderID).fields["status"])

	// Invalid transition maps to 409, unknown order to 404.
	rec = ts.do(t, http.MethodPost, "/orders/ZL-2025-0001/status", OrderStatusRequest{
		Status: OrderStatusAssigned,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/ZL-0000-0000/status", OrderStatusRequest{
		Status: OrderStatusInProgress,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPNotify(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/notify", NotifyRequest{Type: "client", Data: map[string]any{"id": 1}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, http.MethodPost, "/notify", NotifyRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPEventsStream(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := newMemStore()
	broadcaster := NewBroadcaster(logger)
	svc := NewSyncService(store, nil, broadcaster, logger)

	h := NewHTTPHandlers(svc, broadcaster, logger)
	h.Heartbeat = 15 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(h.HandleEvents))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)
	broadcaster.Notify("client", map[string]any{"id": int64(1)})

	// The stream interleaves keepalive comments with framed events; read until
	// all three line shapes have been seen.
	scanner := bufio.NewScanner(resp.Body)
	var sawKeepalive, sawEventLine, sawDataLine bool
	for scanner.Scan() {
		switch line := scanner.Text(); {
		case line == ": keepalive":
			sawKeepalive = true
		case line == "event: client":
			sawEventLine = true
		case strings.HasPrefix(line, "data: "):
			require.Contains(t, line, `"type":"client"`)
			sawDataLine = true
		}
		if sawKeepalive && sawEventLine && sawDataLine {
			break
		}
	}
	require.True(t, sawKeepalive, "no keepalive comment on the stream")
	require.True(t, sawEventLine, "no event frame on the stream")
	require.True(t, sawDataLine, "no data frame on the stream")

	// Dropping the connection prunes the subscriber.
	cancel()
	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestHTTPEventsStreamZeroHeartbeat(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	broadcaster := NewBroadcaster(logger)
	svc := NewSyncService(newMemStore(), nil, broadcaster, logger)

	// A zero interval must fall back to the default, not panic the handler.
	h := NewHTTPHandlers(svc, broadcaster, logger)
	h.Heartbeat = 0

	srv := httptest.NewServer(http.HandlerFunc(h.HandleEvents))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestHTTPBadBatchBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/sync/clients", bytes.NewBufferString(`{"not":"an array"}`))
	req.Header.Set("Authorization", "Bearer "+ts.token)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
