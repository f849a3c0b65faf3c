package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
)

// DefaultMaxSkew bounds the difference between a request timestamp and the
// server clock.
const DefaultMaxSkew = 5 * time.Minute

const maxBodyBytes = 1 << 20

// ErrUnauthenticated is returned for a request whose signature headers are
// missing, malformed, stale, replayed or do not verify.
var ErrUnauthenticated = errors.New("unauthenticated")

// SigningMessage returns the bytes a caller signs for a request.
func SigningMessage(method, path, timestamp, nonce string, body []byte) []byte {
	var b bytes.Buffer
	for _, f := range []string{method, path, timestamp, nonce} {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.Write(body)
	return b.Bytes()
}

// SignRequest sets the signature headers of r for signer. Each call draws a
// fresh nonce, so identical requests sent within one second stay distinct.
func SignRequest(r *http.Request, signer *identity.Signer, body []byte, now time.Time) {
	ts := strconv.FormatInt(now.Unix(), 10)
	nonce := uuid.NewString()
	sig := signer.Sign(SigningMessage(r.Method, r.URL.Path, ts, nonce, body))
	r.Header.Set(HeaderCaller, string(signer.Identity()))
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, identity.EncodeSignature(sig))
}

type callerKey struct{}

// CallerFrom returns the authenticated caller stored in ctx.
func CallerFrom(ctx context.Context) (domain.Identity, bool) {
	c, ok := ctx.Value(callerKey{}).(domain.Identity)
	return c, ok
}

// authenticator verifies signed requests. A signature is accepted once
// within the skew window.
type authenticator struct {
	clock   func() time.Time
	maxSkew time.Duration

	mu        sync.Mutex
	seen      map[string]int64 // signature -> unix expiry
	lastPrune int64
}

func newAuthenticator(clock func() time.Time, maxSkew time.Duration) *authenticator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &authenticator{
		clock:   clock,
		maxSkew: maxSkew,
		seen:    make(map[string]int64),
	}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err))
			return
		}

		caller, err := a.verify(r.Method, r.URL.Path, r.Header, body)
		if err != nil {
			writeError(w, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

func (a *authenticator) verify(method, path string, h http.Header, body []byte) (domain.Identity, error) {
	caller := domain.Identity(h.Get(HeaderCaller))
	ts := h.Get(HeaderTimestamp)
	nonce := h.Get(HeaderNonce)
	encoded := h.Get(HeaderSignature)
	if caller == "" || ts == "" || nonce == "" || encoded == "" {
		return "", fmt.Errorf("%w: missing signature headers", ErrUnauthenticated)
	}

	sent, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp %q", ErrUnauthenticated, ts)
	}
	now := a.clock().Unix()
	skew := int64(a.maxSkew / time.Second)
	if sent < now-skew || sent > now+skew {
		return "", fmt.Errorf("%w: timestamp %d outside window", ErrUnauthenticated, sent)
	}

	sig, err := identity.DecodeSignature(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !identity.Verify(caller, SigningMessage(method, path, ts, nonce, body), sig) {
		return "", fmt.Errorf("%w: bad signature for %q", ErrUnauthenticated, caller)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if now-a.lastPrune > skew {
		for k, exp := range a.seen {
			if exp < now {
				delete(a.seen, k)
			}
		}
		a.lastPrune = now
	}
	if _, dup := a.seen[encoded]; dup {
		return "", fmt.Errorf("%w: replayed request", ErrUnauthenticated)
	}
	a.seen[encoded] = sent + skew
	return caller, nil
}
