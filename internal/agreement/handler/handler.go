package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/service"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/httputil"
	"airdrop/pkg/requestcontext"
)

// Service defines the agreement operations served over HTTP.
type Service interface {
	Initialize(ctx context.Context, req service.InitializeRequest) (*models.AgreementHandle, error)
	Claim(ctx context.Context, authority domain.AccountRef, claimant domain.Principal, amount uint64, route service.FeeRoute) (*models.ClaimReceipt, error)
	Update(ctx context.Context, authority domain.AccountRef, req service.UpdateRequest) (*models.View, error)
	Close(ctx context.Context, authority domain.AccountRef, distributor domain.Principal) error
	Get(ctx context.Context, authority domain.AccountRef) (*models.View, error)
}

// Faucet credits balances out of thin air. Only wired in development.
type Faucet interface {
	Mint(ctx context.Context, owner domain.AccountRef, asset domain.AssetID, amount uint64) (domain.AccountRef, error)
}

// Handler wires agreement endpoints to the agreement service.
type Handler struct {
	service Service
	faucet  Faucet
	logger  *slog.Logger
}

// New constructs an agreement handler. A nil faucet leaves /dev/mint unmounted.
func New(service Service, faucet Faucet, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		faucet:  faucet,
		logger:  logger,
	}
}

// Register mounts agreement endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/agreements", h.HandleInitialize)
	r.Get("/agreements/{authority}", h.HandleGet)
	r.Post("/agreements/{authority}/claim", h.HandleClaim)
	r.Patch("/agreements/{authority}", h.HandleUpdate)
	r.Delete("/agreements/{authority}", h.HandleClose)
}

// RegisterDev mounts the development faucet when one is configured.
func (h *Handler) RegisterDev(r chi.Router) {
	if h.faucet != nil {
		r.Post("/dev/mint", h.HandleMint)
	}
}

// HandleInitialize handles POST /agreements.
func (h *Handler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[InitializeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	handle, err := h.service.Initialize(ctx, req.ToService(caller))
	if err != nil {
		h.fail(w, ctx, "initialize", err, "distributor", caller)
		return
	}

	h.logger.InfoContext(ctx, "agreement initialized",
		"request_id", requestID,
		"distributor", caller,
		"agreement", handle.Authority,
	)
	httputil.WriteJSON(w, http.StatusCreated, handle)
}

// HandleGet handles GET /agreements/{authority}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authority, ok := h.authorityParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.Get(ctx, authority)
	if err != nil {
		h.fail(w, ctx, "get", err, "agreement", authority)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleClaim handles POST /agreements/{authority}/claim.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	authority, ok := h.authorityParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.service.Claim(ctx, authority, caller, req.Amount, req.Route())
	if err != nil {
		h.fail(w, ctx, "claim", err, "agreement", authority, "claimant", caller)
		return
	}

	h.logger.InfoContext(ctx, "tokens claimed",
		"request_id", requestID,
		"agreement", authority,
		"claimant", caller,
		"base_units", receipt.BaseUnits,
		"fee", receipt.Fee,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// HandleUpdate handles PATCH /agreements/{authority}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	authority, ok := h.authorityParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.Update(ctx, authority, req.ToService(caller))
	if err != nil {
		h.fail(w, ctx, "update", err, "agreement", authority)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleClose handles DELETE /agreements/{authority}.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requirePrincipal(w, ctx)
	if !ok {
		return
	}
	authority, ok := h.authorityParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Close(ctx, authority, caller); err != nil {
		h.fail(w, ctx, "close", err, "agreement", authority)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMint handles POST /dev/mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	addr, err := h.faucet.Mint(ctx, req.owner.Account(), req.asset, req.Amount)
	if err != nil {
		h.fail(w, ctx, "mint", err, "owner", req.owner)
		return
	}

	h.logger.WarnContext(ctx, "dev faucet minted funds",
		"request_id", requestID,
		"owner", req.owner,
		"asset", req.asset,
		"amount", req.Amount,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"account": addr,
		"amount":  req.Amount,
	})
}

func (h *Handler) requirePrincipal(w http.ResponseWriter, ctx context.Context) (domain.Principal, bool) {
	caller := requestcontext.Principal(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Principal{}, false
	}
	return caller, true
}

func (h *Handler) authorityParam(w http.ResponseWriter, r *http.Request) (domain.AccountRef, bool) {
	authority, err := domain.ParseAccountRef(chi.URLParam(r, "authority"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.AccountRef{}, false
	}
	return authority, true
}

// fail logs err and writes its response. A duplicate initialization is a
// conflict even though the service reports it as a validation failure.
func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, operation string, err error, attrs ...any) {
	status := httputil.StatusFor(dErrors.CodeOf(err))
	if errors.Is(err, models.ErrContractInitialized) {
		status = http.StatusConflict
	}

	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"operation", operation,
		"error", err,
	}, attrs...)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "agreement request failed", args...)
	} else {
		h.logger.WarnContext(ctx, "agreement request rejected", args...)
	}
	httputil.WriteErrorStatus(w, status, err)
}
