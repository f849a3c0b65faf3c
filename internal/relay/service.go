// Package relay is the inbound surface of the ledger: the relayer
// submission service and its HTTP transport.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/ledger"
	"bridge-ledger/internal/proof"
)

// Submission is a relayed mint or release as received from a relayer.
type Submission struct {
	Asset     string          `json:"asset"`
	Recipient domain.Identity `json:"recipient"`
	Amount    uint64          `json:"amount"`
	DepositID string          `json:"deposit_id"`
	Proof     json.RawMessage `json:"proof"`
}

// Service validates relayer submissions and hands them to the ledger.
// It keeps no state of its own.
type Service struct {
	ledger *ledger.Ledger
	logger zerolog.Logger
}

// NewService creates a service over l.
func NewService(l *ledger.Ledger, logger zerolog.Logger) *Service {
	return &Service{ledger: l, logger: logger}
}

// SubmitMint relays a mint. Caller must hold MINTER or RELAYER.
func (s *Service) SubmitMint(ctx context.Context, caller domain.Identity, sub Submission) (*domain.Event, error) {
	if err := s.authorize(caller, "mint", domain.RoleMinter, domain.RoleRelayer); err != nil {
		return nil, err
	}
	req, decodeErr := creditRequest(sub)
	ev, err := s.ledger.Mint(ctx, caller, req)
	return ev, proofError(err, decodeErr)
}

// SubmitRelease relays a release. Caller must hold BURNER or RELAYER.
func (s *Service) SubmitRelease(ctx context.Context, caller domain.Identity, sub Submission) (*domain.Event, error) {
	if err := s.authorize(caller, "release", domain.RoleBurner, domain.RoleRelayer); err != nil {
		return nil, err
	}
	req, decodeErr := creditRequest(sub)
	ev, err := s.ledger.Release(ctx, caller, req)
	return ev, proofError(err, decodeErr)
}

func (s *Service) authorize(caller domain.Identity, op string, allowed ...domain.Role) error {
	for _, r := range allowed {
		if s.ledger.HasRole(r, caller) {
			return nil
		}
	}
	s.logger.Warn().Str("caller", string(caller)).Str("op", op).Msg("relay submission rejected")
	return fmt.Errorf("%w: %q requires one of %v", domain.ErrUnauthorized, caller, allowed)
}

// creditRequest decodes the proof of sub. A proof that fails to decode is
// passed on as missing, so the ledger still applies its pause, replay and
// policy checks ahead of the proof check and counts the failure.
func creditRequest(sub Submission) (ledger.CreditRequest, error) {
	req := ledger.CreditRequest{
		Asset:     sub.Asset,
		Recipient: sub.Recipient,
		Amount:    sub.Amount,
		DepositID: sub.DepositID,
	}
	if len(sub.Proof) == 0 {
		return req, fmt.Errorf("%w: missing proof", domain.ErrInvalidProof)
	}
	p, err := proof.Decode(sub.Proof)
	if err != nil {
		return req, err
	}
	req.Proof = p
	return req, nil
}

// proofError reports the decode failure in place of the ledger's generic
// missing-proof error.
func proofError(err, decodeErr error) error {
	if decodeErr != nil && errors.Is(err, domain.ErrInvalidProof) {
		return decodeErr
	}
	return err
}
