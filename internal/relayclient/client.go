// Package relayclient is the Go client of the bridge relay API: signed
// submissions, transfer and admin calls, queries and the event stream.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
	"bridge-ledger/internal/ledger"
	"bridge-ledger/internal/relay"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client calls one bridge ledger over HTTP.
type Client struct {
	endpoint    string
	signer      *identity.Signer
	client      *http.Client
	clock       func() time.Time
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithClock sets the clock used for request timestamps.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// New creates a client for the ledger served at endpoint. Signed calls are
// made as signer; signer may be nil for a read-only client.
func New(endpoint string, signer *identity.Signer, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		signer:      signer,
		client:      &http.Client{Timeout: DefaultTimeout},
		clock:       time.Now,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the signing identity, or "" for a read-only client.
func (c *Client) Identity() domain.Identity {
	if c.signer == nil {
		return ""
	}
	return c.signer.Identity()
}

// APIError is a request the ledger answered with an error status.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// Is matches the ledger sentinel the server reported, so callers can test
// errors.Is(err, domain.ErrAlreadyConsumed) on a remote failure.
func (e *APIError) Is(target error) bool {
	if e.Kind == "" || e.Kind != string(domain.KindOf(target)) {
		return false
	}
	return strings.Contains(e.Message, target.Error())
}

// retryable reports whether a response status may be retried.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// call performs one API request with retries and exponential backoff.
// Only idempotent calls are retried after a transport error; a lost
// response to a lock or burn must not open a second transfer.
func (c *Client) call(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	if method == http.MethodPost && c.signer == nil {
		return fmt.Errorf("%s %s: client has no signer", method, path)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
			relay.SignRequest(req, c.signer, body, c.clock())
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if !idempotent || ctx.Err() != nil {
				return fmt.Errorf("http request: %w", err)
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if !idempotent {
				return lastErr
			}
			continue
		}

		if retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			// API errors are not retried
			return decodeError(resp.StatusCode, respBody)
		}

		if out != nil && resp.StatusCode != http.StatusNoContent && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeError(status int, body []byte) error {
	var r relay.ErrorResponse
	if err := json.Unmarshal(body, &r); err != nil || r.Error == "" {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Kind: r.Kind, Message: r.Error}
}

// mutate posts a signed request. A nil event means the call changed nothing.
func (c *Client) mutate(ctx context.Context, path string, in any, idempotent bool) (*domain.Event, error) {
	var ev domain.Event
	if err := c.call(ctx, http.MethodPost, path, in, &ev, idempotent); err != nil {
		return nil, err
	}
	if ev.Type == "" {
		return nil, nil
	}
	return &ev, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out, true)
}

// SubmitMint relays a mint. Retrying is safe: the deposit id is consumed once.
func (c *Client) SubmitMint(ctx context.Context, sub relay.Submission) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/relay/mint", sub, true)
}

// SubmitRelease relays a release.
func (c *Client) SubmitRelease(ctx context.Context, sub relay.Submission) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/relay/release", sub, true)
}

// Lock locks amount of asset for minting on destinationChain.
func (c *Client) Lock(ctx context.Context, asset string, amount uint64, destinationChain string) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/transfers/lock", relay.TransferRequest{
		Asset: asset, Amount: amount, DestinationChain: destinationChain,
	}, false)
}

// Burn burns wrapped amount of asset for release on destinationChain.
func (c *Client) Burn(ctx context.Context, asset string, amount uint64, destinationChain string) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/transfers/burn", relay.TransferRequest{
		Asset: asset, Amount: amount, DestinationChain: destinationChain,
	}, false)
}

// Finalize completes a pending outbound transfer.
func (c *Client) Finalize(ctx context.Context, depositID string) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/transfers/"+url.PathEscape(depositID)+"/finalize", nil, true)
}

// Refund returns a pending outbound transfer to its sender.
func (c *Client) Refund(ctx context.Context, depositID string) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/transfers/"+url.PathEscape(depositID)+"/refund", nil, true)
}

// Grant gives role to holder.
func (c *Client) Grant(ctx context.Context, role domain.Role, holder domain.Identity) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/roles/grant", relay.RoleRequest{Role: role, Holder: holder}, true)
}

// Revoke removes role from holder.
func (c *Client) Revoke(ctx context.Context, role domain.Role, holder domain.Identity) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/roles/revoke", relay.RoleRequest{Role: role, Holder: holder}, true)
}

// Configure sets the policy of asset.
func (c *Client) Configure(ctx context.Context, asset string, minAmount, maxAmount, dailyLimit uint64) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/tokens/"+url.PathEscape(asset), relay.ConfigureRequest{
		MinAmount: minAmount, MaxAmount: maxAmount, DailyLimit: dailyLimit,
	}, true)
}

// Disable stops accepting transfers of asset.
func (c *Client) Disable(ctx context.Context, asset string) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/tokens/"+url.PathEscape(asset)+"/disable", nil, true)
}

// Pause halts every state-changing operation.
func (c *Client) Pause(ctx context.Context, reason string) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/pause", relay.PauseRequest{Reason: reason}, true)
}

// Unpause resumes operation.
func (c *Client) Unpause(ctx context.Context) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/unpause", nil, true)
}

// Fund credits holder with amount of asset collateral.
func (c *Client) Fund(ctx context.Context, asset string, holder domain.Identity, amount uint64) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/fund", relay.FundRequest{Asset: asset, Holder: holder, Amount: amount}, false)
}

// EmergencyWithdraw moves custody of asset to recipient while paused.
func (c *Client) EmergencyWithdraw(ctx context.Context, asset string, recipient domain.Identity, amount uint64) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/emergency-withdraw", relay.FundRequest{Asset: asset, Holder: recipient, Amount: amount}, false)
}

// SetValidatorThreshold changes the number of validator signatures a proof needs.
func (c *Client) SetValidatorThreshold(ctx context.Context, n int) (*domain.Event, error) {
	return c.mutate(ctx, "/v1/admin/threshold", relay.ThresholdRequest{Threshold: n}, true)
}

// Status returns the ledger status.
func (c *Client) Status(ctx context.Context) (*relay.StatusResponse, error) {
	var out relay.StatusResponse
	if err := c.get(ctx, "/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit returns the replay guard state of depositID.
func (c *Client) Deposit(ctx context.Context, depositID string) (*relay.DepositResponse, error) {
	var out relay.DepositResponse
	if err := c.get(ctx, "/v1/deposits/"+url.PathEscape(depositID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer returns the outbound transfer with depositID.
func (c *Client) Transfer(ctx context.Context, depositID string) (*domain.Transfer, error) {
	var out domain.Transfer
	if err := c.get(ctx, "/v1/transfers/"+url.PathEscape(depositID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the balance of holder in asset.
func (c *Client) Balance(ctx context.Context, asset string, holder domain.Identity) (uint64, error) {
	var out relay.BalanceResponse
	path := "/v1/balances/" + url.PathEscape(asset) + "/" + url.PathEscape(string(holder))
	if err := c.get(ctx, path, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

// Asset returns custody, supply and policy of asset.
func (c *Client) Asset(ctx context.Context, asset string) (*relay.AssetResponse, error) {
	var out relay.AssetResponse
	if err := c.get(ctx, "/v1/assets/"+url.PathEscape(asset), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HasRole reports whether holder holds role.
func (c *Client) HasRole(ctx context.Context, role domain.Role, holder domain.Identity) (bool, error) {
	var out relay.HasRoleResponse
	path := "/v1/roles/" + url.PathEscape(string(role)) + "/" + url.PathEscape(string(holder))
	if err := c.get(ctx, path, &out); err != nil {
		return false, err
	}
	return out.HasRole, nil
}

// Snapshot returns a copy of the served ledger state.
func (c *Client) Snapshot(ctx context.Context) (*ledger.Snapshot, error) {
	var out ledger.Snapshot
	if err := c.get(ctx, "/v1/snapshot", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns up to limit events after seq. A zero limit uses the
// server default.
func (c *Client) Events(ctx context.Context, after uint64, limit int) (*relay.EventsResponse, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out relay.EventsResponse
	if err := c.get(ctx, "/v1/events?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsAPIError reports whether err is an API error with status.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
