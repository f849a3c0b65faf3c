// Package proof implements the validator attestation carried by mint and
// release requests.
//
// A proof is a set of ed25519 signatures by VALIDATOR holders over the
// digest of a Claim. The digest binds every field of the credit, including
// the destination chain, so a proof cannot be reused for a different
// recipient, amount, asset, deposit or chain.
package proof

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
)

// domainTag separates bridge digests from any other signed payload.
const domainTag = "bridge-ledger/v1"

// Claim is the credit a proof attests to.
type Claim struct {
	Kind             domain.DepositKind
	SourceChain      string
	DestinationChain string
	Asset            string
	Amount           uint64
	Recipient        domain.Identity
	DepositID        string
}

// Digest returns the message validators sign.
// Fields are length-prefixed so no two claims share an encoding.
func (c Claim) Digest() [32]byte {
	h := sha256.New()
	writeField(h, domainTag)
	writeField(h, string(c.Kind))
	writeField(h, c.SourceChain)
	writeField(h, c.DestinationChain)
	writeField(h, c.Asset)

	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], c.Amount)
	h.Write(amt[:])

	writeField(h, string(c.Recipient))
	writeField(h, c.DepositID)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// Signature is one validator's attestation.
type Signature struct {
	Validator domain.Identity
	Signature []byte
}

// Proof is a decoded attestation.
type Proof struct {
	SourceChain string
	Signatures  []Signature
}

type wireSignature struct {
	Validator string `json:"validator"`
	Signature string `json:"signature"`
}

type wireProof struct {
	SourceChain string          `json:"source_chain"`
	Signatures  []wireSignature `json:"signatures"`
}

// Decode parses and structurally validates a proof. It checks encodings,
// key and signature lengths and signer uniqueness; it does not verify
// signatures.
func Decode(raw []byte) (*Proof, error) {
	var w wireProof
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProof, err)
	}
	if w.SourceChain == "" {
		return nil, fmt.Errorf("%w: missing source chain", domain.ErrInvalidProof)
	}
	if len(w.Signatures) == 0 {
		return nil, fmt.Errorf("%w: no signatures", domain.ErrInvalidProof)
	}

	p := &Proof{
		SourceChain: w.SourceChain,
		Signatures:  make([]Signature, 0, len(w.Signatures)),
	}
	seen := make(map[domain.Identity]struct{}, len(w.Signatures))
	for i, s := range w.Signatures {
		id := domain.Identity(s.Validator)
		if _, err := identity.PublicKey(id); err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", domain.ErrInvalidProof, i, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate signer %s", domain.ErrInvalidProof, id)
		}
		seen[id] = struct{}{}

		sig, err := identity.DecodeSignature(s.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", domain.ErrInvalidProof, i, err)
		}
		p.Signatures = append(p.Signatures, Signature{Validator: id, Signature: sig})
	}
	return p, nil
}

// Encode returns the wire form of p.
func (p *Proof) Encode() ([]byte, error) {
	w := wireProof{
		SourceChain: p.SourceChain,
		Signatures:  make([]wireSignature, len(p.Signatures)),
	}
	for i, s := range p.Signatures {
		w.Signatures[i] = wireSignature{
			Validator: string(s.Validator),
			Signature: identity.EncodeSignature(s.Signature),
		}
	}
	return json.Marshal(w)
}

// Sign produces a proof for c signed by each of signers.
func Sign(c Claim, signers ...*identity.Signer) *Proof {
	d := c.Digest()
	p := &Proof{
		SourceChain: c.SourceChain,
		Signatures:  make([]Signature, 0, len(signers)),
	}
	for _, s := range signers {
		p.Signatures = append(p.Signatures, Signature{
			Validator: s.Identity(),
			Signature: s.Sign(d[:]),
		})
	}
	return p
}

// ValidatorSet answers whether an identity currently holds a role.
type ValidatorSet interface {
	HasRole(role domain.Role, holder domain.Identity) bool
}

// Verify checks p against c. At least threshold distinct signers must hold
// VALIDATOR in validators and have signed c's digest. Signatures from
// non-validators are ignored rather than rejected.
func Verify(c Claim, p *Proof, validators ValidatorSet, threshold int) error {
	if p == nil {
		return fmt.Errorf("%w: missing proof", domain.ErrInvalidProof)
	}
	if threshold < 1 {
		threshold = 1
	}
	if p.SourceChain != c.SourceChain {
		return fmt.Errorf("%w: proof is for source chain %q, claim is %q", domain.ErrInvalidProof, p.SourceChain, c.SourceChain)
	}

	d := c.Digest()
	valid := 0
	seen := make(map[domain.Identity]struct{}, len(p.Signatures))
	for _, s := range p.Signatures {
		if _, dup := seen[s.Validator]; dup {
			continue
		}
		seen[s.Validator] = struct{}{}

		if !validators.HasRole(domain.RoleValidator, s.Validator) {
			continue
		}
		if identity.Verify(s.Validator, d[:], s.Signature) {
			valid++
		}
	}

	if valid < threshold {
		return fmt.Errorf("%w: %d valid validator signatures, need %d", domain.ErrInvalidProof, valid, threshold)
	}
	return nil
}
