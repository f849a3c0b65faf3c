package relayclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/events"
	"bridge-ledger/internal/identity"
	"bridge-ledger/internal/ledger"
	"bridge-ledger/internal/relay"
	"bridge-ledger/internal/storage/memory"
)

// node is one ledger served over HTTP.
type node struct {
	ledger *ledger.Ledger
	server *httptest.Server
	admin  *identity.Signer
}

func newSigner(t *testing.T) *identity.Signer {
	t.Helper()
	s, err := identity.GenerateSigner()
	require.NoError(t, err)
	return s
}

// newNode serves a fresh ledger for chainID with USDT configured as
// {1, 100000, 50000}, relayer holding RELAYER and validators at threshold 2.
func newNode(t *testing.T, chainID string, relayer *identity.Signer, validators []*identity.Signer) *node {
	t.Helper()
	n := &node{admin: newSigner(t)}

	journal := memory.NewJournalStore()
	hub := events.NewHub(events.DefaultSubscriberBuffer, zerolog.Nop())
	l, err := ledger.New(chainID, []domain.Identity{n.admin.Identity()},
		ledger.WithJournal(journal),
		ledger.WithSink(hub),
	)
	require.NoError(t, err)
	n.ledger = l

	ctx := context.Background()
	admin := n.admin.Identity()
	if relayer != nil {
		_, err = l.Grant(ctx, admin, domain.RoleRelayer, relayer.Identity())
		require.NoError(t, err)
	}
	for _, v := range validators {
		_, err = l.Grant(ctx, admin, domain.RoleValidator, v.Identity())
		require.NoError(t, err)
	}
	if len(validators) >= 2 {
		_, err = l.SetValidatorThreshold(ctx, admin, 2)
		require.NoError(t, err)
	}
	_, err = l.Configure(ctx, admin, "USDT", 1, 100000, 50000)
	require.NoError(t, err)

	srv := relay.NewServer(relay.ServerConfig{
		Ledger:  l,
		Journal: journal,
		Hub:     hub,
		Logger:  zerolog.Nop(),
	})
	n.server = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		n.server.Close()
	})
	return n
}

// client returns a client of n signing as signer with fast retries.
func (n *node) client(signer *identity.Signer) *Client {
	return New(n.server.URL, signer,
		WithTimeout(5*time.Second),
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
	)
}
