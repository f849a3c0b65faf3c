package relayclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
	"bridge-ledger/internal/proof"
	"bridge-ledger/internal/relay"
)

// Attester obtains the validator proof for a claim.
type Attester interface {
	Attest(ctx context.Context, c proof.Claim) (*proof.Proof, error)
}

// LocalAttester signs claims with validator keys held in process.
type LocalAttester struct {
	Signers []*identity.Signer
}

// Attest signs c with every held key.
func (a LocalAttester) Attest(_ context.Context, c proof.Claim) (*proof.Proof, error) {
	if len(a.Signers) == 0 {
		return nil, errors.New("no validator keys")
	}
	return proof.Sign(c, a.Signers...), nil
}

// Relayer carries outbound transfers from a source ledger to a destination
// ledger: a lock becomes a mint, a burn becomes a release, and the source
// transfer is finalized once the destination credit is committed.
type Relayer struct {
	source    *Client
	dest      *Client
	destChain string
	attester  Attester
	logger    zerolog.Logger
}

// NewRelayer creates a relayer between source and dest. destChain is the
// chain id served by dest.
func NewRelayer(source, dest *Client, destChain string, attester Attester, logger zerolog.Logger) *Relayer {
	return &Relayer{
		source:    source,
		dest:      dest,
		destChain: destChain,
		attester:  attester,
		logger:    logger.With().Str("component", "relayer").Str("destination", destChain).Logger(),
	}
}

// Run relays events until ctx is done or events is closed. A transfer that
// fails is logged and left pending; it is picked up again when the stream
// is resumed from an earlier sequence.
func (r *Relayer) Run(ctx context.Context, events <-chan *domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.logger.Error().Err(err).
					Uint64("seq", ev.Seq).
					Str("deposit_id", ev.DepositID()).
					Msg("relay failed")
			}
		}
	}
}

// Handle relays one event. Events that are not outbound to the destination
// chain are ignored. A transfer the source already closed is skipped, and a
// deposit the destination already consumed is finalized without
// resubmitting, so redelivered events never reach the destination ledger
// as replays.
func (r *Relayer) Handle(ctx context.Context, ev *domain.Event) error {
	claim, ok := r.claimOf(ev)
	if !ok {
		return nil
	}
	log := r.logger.With().Str("deposit_id", claim.DepositID).Logger()

	t, err := r.source.Transfer(ctx, claim.DepositID)
	if err != nil {
		return fmt.Errorf("source transfer %s: %w", claim.DepositID, err)
	}
	if !t.Pending() {
		log.Debug().Str("status", string(t.Status)).Msg("transfer already closed on source")
		return nil
	}

	dep, err := r.dest.Deposit(ctx, claim.DepositID)
	if err != nil {
		return fmt.Errorf("destination deposit %s: %w", claim.DepositID, err)
	}
	if dep.Consumed {
		log.Debug().Msg("deposit already credited")
	} else if err := r.submit(ctx, claim); err != nil {
		return err
	}

	if _, err := r.source.Finalize(ctx, claim.DepositID); err != nil {
		return fmt.Errorf("finalize %s: %w", claim.DepositID, err)
	}
	log.Info().
		Str("kind", string(claim.Kind)).
		Str("asset", claim.Asset).
		Uint64("amount", claim.Amount).
		Msg("transfer relayed")
	return nil
}

// claimOf builds the destination credit claim of an outbound event.
func (r *Relayer) claimOf(ev *domain.Event) (proof.Claim, bool) {
	var c proof.Claim
	switch {
	case ev.Lock != nil && ev.Lock.DestinationChain == r.destChain:
		c = proof.Claim{Kind: domain.DepositKindMint, Asset: ev.Lock.Asset, Amount: ev.Lock.Amount, Recipient: ev.Lock.Sender, DepositID: ev.Lock.DepositID}
	case ev.Burn != nil && ev.Burn.DestinationChain == r.destChain:
		c = proof.Claim{Kind: domain.DepositKindRelease, Asset: ev.Burn.Asset, Amount: ev.Burn.Amount, Recipient: ev.Burn.Sender, DepositID: ev.Burn.DepositID}
	default:
		return c, false
	}
	c.SourceChain = ev.ChainID
	c.DestinationChain = r.destChain
	return c, true
}

// submit attests c and sends it to the destination. Losing a race with
// another relayer for the same deposit is not an error.
func (r *Relayer) submit(ctx context.Context, c proof.Claim) error {
	p, err := r.attester.Attest(ctx, c)
	if err != nil {
		return fmt.Errorf("attest %s: %w", c.DepositID, err)
	}
	raw, err := p.Encode()
	if err != nil {
		return fmt.Errorf("encode proof %s: %w", c.DepositID, err)
	}

	send := r.dest.SubmitMint
	if c.Kind == domain.DepositKindRelease {
		send = r.dest.SubmitRelease
	}
	_, err = send(ctx, relay.Submission{
		Asset:     c.Asset,
		Recipient: c.Recipient,
		Amount:    c.Amount,
		DepositID: c.DepositID,
		Proof:     raw,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyConsumed):
		r.logger.Debug().Str("deposit_id", c.DepositID).Msg("deposit credited concurrently")
	case err != nil:
		return fmt.Errorf("submit %s %s: %w", c.Kind, c.DepositID, err)
	}
	return nil
}
