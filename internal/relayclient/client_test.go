package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/relay"
)

func fastClient(url string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
	}, opts...)
	return New(url, nil, opts...)
}

func TestClient_RetriesGatewayErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(relay.StatusResponse{ChainID: "chain-a", LastSeq: 7})
	}))
	defer server.Close()

	status, err := fastClient(server.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	assert.Equal(t, "chain-a", status.ChainID)
	assert.Equal(t, uint64(7), status.LastSeq)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := fastClient(server.URL, WithMaxRetries(2)).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_APIErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(relay.ErrorResponse{Error: "deposit already consumed: D1", Kind: "integrity"})
	}))
	defer server.Close()

	_, err := fastClient(server.URL).Deposit(context.Background(), "D1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	assert.True(t, errors.Is(err, domain.ErrAlreadyConsumed))
	assert.False(t, errors.Is(err, domain.ErrInvalidProof))
	assert.True(t, IsAPIError(err, http.StatusConflict))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "integrity", apiErr.Kind)
}

func TestClient_LockNotRetriedAfterTransportError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	}))
	defer server.Close()

	c := New(server.URL, newSigner(t), WithRetryDelay(time.Millisecond))
	_, err := c.Lock(context.Background(), "USDT", 10, "chain-b")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Transfer(context.Background(), "D1")
	require.Error(t, err)
	assert.Equal(t, int32(1+DefaultMaxRetries+1), calls.Load())
}

func TestClient_SignedCallWithoutSigner(t *testing.T) {
	_, err := New("http://127.0.0.1:1", nil).Pause(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signer")
}

func TestClient_AgainstServer(t *testing.T) {
	ctx := context.Background()
	n := newNode(t, "chain-a", nil, nil)
	admin := n.client(n.admin)
	alice := newSigner(t)
	user := n.client(alice)

	ev, err := admin.Fund(ctx, "USDT", alice.Identity(), 500)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventTypeAudit, ev.Type)

	ev, err = user.Lock(ctx, "USDT", 200, "chain-b")
	require.NoError(t, err)
	require.NotNil(t, ev.Lock)
	depositID := ev.Lock.DepositID

	balance, err := user.Balance(ctx, "USDT", alice.Identity())
	require.NoError(t, err)
	assert.Equal(t, uint64(300), balance)

	asset, err := user.Asset(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), asset.Custody)

	tr, err := user.Transfer(ctx, depositID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, tr.Status)

	_, err = user.Refund(ctx, depositID)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.True(t, IsAPIError(err, http.StatusForbidden))

	_, err = admin.Refund(ctx, depositID)
	require.NoError(t, err)
	balance, err = user.Balance(ctx, "USDT", alice.Identity())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), balance)

	ev, err = admin.Pause(ctx, "maintenance")
	require.NoError(t, err)
	require.NotNil(t, ev)
	ev, err = admin.Pause(ctx, "again")
	require.NoError(t, err)
	assert.Nil(t, ev)

	_, err = user.Lock(ctx, "USDT", 10, "chain-b")
	assert.True(t, errors.Is(err, domain.ErrPaused))
	assert.True(t, IsAPIError(err, http.StatusServiceUnavailable))

	_, err = admin.Unpause(ctx)
	require.NoError(t, err)

	ok, err := user.HasRole(ctx, domain.RoleAdmin, n.admin.Identity())
	require.NoError(t, err)
	assert.True(t, ok)

	page, err := user.Events(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, uint64(2), page.Next)

	snap, err := user.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, n.ledger.Snapshot().Nonce, snap.Nonce)
	assert.Equal(t, uint64(500), snap.Balances["USDT"][alice.Identity()])

	status, err := user.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chain-a", status.ChainID)
	assert.False(t, status.Paused)
}
