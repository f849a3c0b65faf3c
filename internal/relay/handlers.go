package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/ledger"
)

const (
	defaultEventsPage = 500
	maxEventsPage     = 1000
)

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) == domain.KindInternal && !isAuthError(err) {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, err)
}

func isAuthError(err error) bool {
	status, _ := statusOf(err)
	return status == http.StatusUnauthorized
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidInput, name, raw)
	}
	return v, nil
}

// mutate runs fn for the authenticated caller and writes the resulting event.
// A call that changed nothing answers 204.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, caller domain.Identity) (*domain.Event, error)) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: no caller", ErrUnauthenticated))
		return
	}
	ev, err := fn(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ev == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// withBody decodes the request body into a fresh T before calling fn.
func withBody[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, caller domain.Identity, req T) (*domain.Event, error)) {
	var req T
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, func(ctx context.Context, caller domain.Identity) (*domain.Event, error) {
		return fn(ctx, caller, req)
	})
}

func (s *Server) handleSubmitMint(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, s.service.SubmitMint)
}

func (s *Server) handleSubmitRelease(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, s.service.SubmitRelease)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req TransferRequest) (*domain.Event, error) {
		return s.ledger.Lock(ctx, caller, req.Asset, req.Amount, req.DestinationChain)
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req TransferRequest) (*domain.Event, error) {
		return s.ledger.Burn(ctx, caller, req.Asset, req.Amount, req.DestinationChain)
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mutate(w, r, func(ctx context.Context, caller domain.Identity) (*domain.Event, error) {
		return s.ledger.Finalize(ctx, caller, id)
	})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mutate(w, r, func(ctx context.Context, caller domain.Identity) (*domain.Event, error) {
		return s.ledger.Refund(ctx, caller, id)
	})
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req RoleRequest) (*domain.Event, error) {
		return s.ledger.Grant(ctx, caller, req.Role, req.Holder)
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req RoleRequest) (*domain.Event, error) {
		return s.ledger.Revoke(ctx, caller, req.Role, req.Holder)
	})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req ConfigureRequest) (*domain.Event, error) {
		return s.ledger.Configure(ctx, caller, asset, req.MinAmount, req.MaxAmount, req.DailyLimit)
	})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	s.mutate(w, r, func(ctx context.Context, caller domain.Identity) (*domain.Event, error) {
		return s.ledger.Disable(ctx, caller, asset)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req PauseRequest) (*domain.Event, error) {
		return s.ledger.Pause(ctx, caller, req.Reason)
	})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.ledger.Unpause)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req FundRequest) (*domain.Event, error) {
		return s.ledger.Fund(ctx, caller, req.Asset, req.Holder, req.Amount)
	})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req FundRequest) (*domain.Event, error) {
		return s.ledger.EmergencyWithdraw(ctx, caller, req.Asset, req.Holder, req.Amount)
	})
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, caller domain.Identity, req ThresholdRequest) (*domain.Event, error) {
		return s.ledger.SetValidatorThreshold(ctx, caller, req.Threshold)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	last, err := s.journal.Last(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := StatusResponse{
		ChainID:   s.ledger.ChainID(),
		Paused:    s.ledger.Paused(),
		Threshold: s.ledger.ValidatorThreshold(),
		LastSeq:   last,
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.TokenConfigs())
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	cfg, ok := s.ledger.TokenConfig(asset)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("asset %q not configured", asset), Kind: string(domain.KindPolicy)})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	resp := AssetResponse{
		Asset:   asset,
		Custody: s.ledger.Custody(asset),
		Supply:  s.ledger.Supply(asset),
	}
	if cfg, ok := s.ledger.TokenConfig(asset); ok {
		resp.Config = &cfg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	holder := domain.Identity(vars["holder"])
	writeJSON(w, http.StatusOK, BalanceResponse{
		Asset:   vars["asset"],
		Holder:  holder,
		Balance: s.ledger.Balance(vars["asset"], holder),
	})
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(mux.Vars(r)["role"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.Holders(role))
}

func (s *Server) handleHasRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role, err := domain.ParseRole(vars["role"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	holder := domain.Identity(vars["holder"])
	writeJSON(w, http.StatusOK, HasRoleResponse{
		Role:    role,
		Holder:  holder,
		HasRole: s.ledger.HasRole(role, holder),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp := DepositResponse{DepositID: id}
	if rec, ok := s.ledger.Deposit(id); ok {
		resp.Consumed = true
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending := s.ledger.PendingTransfers(r.URL.Query().Get("asset"))
	if pending == nil {
		pending = []domain.Transfer{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.Transfer(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Snapshot())
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if s.volume == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "volume analytics not configured", Kind: string(domain.KindInternal)})
		return
	}
	asset := mux.Vars(r)["asset"]
	from, err := queryUint(r, "from", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := queryUint(r, "to", uint64(s.auth.clock().Unix()))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	buckets, err := s.volume.DailyVolume(r.Context(), s.ledger.ChainID(), asset, int64(from), int64(to))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := VolumeResponse{Asset: asset, Buckets: make([]VolumeBucket, 0, len(buckets))}
	for _, b := range buckets {
		resp.Buckets = append(resp.Buckets, VolumeBucket{Day: b.Day, Type: b.Type, Count: b.Count, Amount: b.Amount})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryUint(r, "limit", defaultEventsPage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if limit == 0 || limit > maxEventsPage {
		limit = maxEventsPage
	}

	entries, err := s.journal.List(r.Context(), after, int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := EventsResponse{Events: make([]*domain.Event, 0, len(entries)), Next: after}
	for _, e := range entries {
		resp.Events = append(resp.Events, ledger.EventFromEntry(e))
		resp.Next = e.Seq
	}
	writeJSON(w, http.StatusOK, resp)
}
