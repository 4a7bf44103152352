package handler

import (
	"strings"

	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/service"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
)

// InitializeRequest is the HTTP request body for POST /agreements.
type InitializeRequest struct {
	FeeAsset   string `json:"fee_asset"`
	TokenAsset string `json:"token_asset"`
	// Optional; defaults to the distributor's associated token account.
	DistributorTokenAccount string `json:"distributor_token_account,omitempty"`
	Deposit                 uint64 `json:"deposit"`
	Decimals                uint8  `json:"decimals"`
	FeeAmount               uint64 `json:"fee_amount"`
	FeeMode                 string `json:"fee_mode"`

	parsed service.InitializeRequest
}

// Validate parses the asset ids, account and fee mode.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *InitializeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	feeAsset, err := domain.ParseAssetID(strings.TrimSpace(r.FeeAsset))
	if err != nil {
		return err
	}
	tokenAsset, err := domain.ParseAssetID(strings.TrimSpace(r.TokenAsset))
	if err != nil {
		return err
	}
	mode, err := models.ParseFeeMode(strings.TrimSpace(r.FeeMode))
	if err != nil {
		return err
	}

	r.parsed = service.InitializeRequest{
		FeeAsset:   feeAsset,
		TokenAsset: tokenAsset,
		Deposit:    r.Deposit,
		Decimals:   r.Decimals,
		FeeAmount:  r.FeeAmount,
		FeeMode:    mode,
	}
	if acct := strings.TrimSpace(r.DistributorTokenAccount); acct != "" {
		ref, err := domain.ParseAccountRef(acct)
		if err != nil {
			return err
		}
		r.parsed.DistributorTokenAccount = ref
	}
	return nil
}

// ToService returns the service request for distributor.
func (r *InitializeRequest) ToService(distributor domain.Principal) service.InitializeRequest {
	req := r.parsed
	req.Distributor = distributor
	return req
}

const (
	feeRouteNative = "native"
	feeRouteAsset  = "asset"
)

// ClaimRequest is the HTTP request body for POST /agreements/{authority}/claim.
type ClaimRequest struct {
	Amount uint64 `json:"amount"`
	// FeeRoute is "native" or "asset"; empty means native.
	FeeRoute           string `json:"fee_route"`
	ClaimantFeeAccount string `json:"claimant_fee_account,omitempty"`

	route service.FeeRoute
}

func (r *ClaimRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	switch strings.ToLower(strings.TrimSpace(r.FeeRoute)) {
	case "", feeRouteNative:
		if strings.TrimSpace(r.ClaimantFeeAccount) != "" {
			return dErrors.New(dErrors.CodeValidation, "claimant_fee_account is only valid with fee_route 'asset'")
		}
		r.route = service.NativeFee{}
	case feeRouteAsset:
		route := service.AssetFee{}
		if acct := strings.TrimSpace(r.ClaimantFeeAccount); acct != "" {
			ref, err := domain.ParseAccountRef(acct)
			if err != nil {
				return err
			}
			route.ClaimantFeeAccount = ref
		}
		r.route = route
	default:
		return dErrors.New(dErrors.CodeValidation, "fee_route must be 'native' or 'asset'")
	}
	return nil
}

// Route returns the parsed fee route.
func (r *ClaimRequest) Route() service.FeeRoute {
	return r.route
}

// UpdateRequest is the HTTP request body for PATCH /agreements/{authority}.
type UpdateRequest struct {
	FeeAmount uint64 `json:"fee_amount"`
	FeeMode   string `json:"fee_mode"`
	TopUp     uint64 `json:"top_up"`

	mode models.FeeMode
}

func (r *UpdateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	mode, err := models.ParseFeeMode(strings.TrimSpace(r.FeeMode))
	if err != nil {
		return err
	}
	r.mode = mode
	return nil
}

// ToService returns the service request for distributor.
func (r *UpdateRequest) ToService(distributor domain.Principal) service.UpdateRequest {
	return service.UpdateRequest{
		Distributor: distributor,
		FeeAmount:   r.FeeAmount,
		FeeMode:     r.mode,
		TopUp:       r.TopUp,
	}
}

// MintRequest is the HTTP request body for POST /dev/mint. Amount is in base
// units.
type MintRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`

	owner domain.Principal
	asset domain.AssetID
}

func (r *MintRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	owner, err := domain.ParsePrincipal(strings.TrimSpace(r.Owner))
	if err != nil {
		return err
	}
	r.owner = owner

	// An empty asset mints native currency.
	r.asset = domain.NativeCurrency
	if asset := strings.TrimSpace(r.Asset); asset != "" {
		if r.asset, err = domain.ParseAssetID(asset); err != nil {
			return err
		}
	}
	if r.Amount == 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	return nil
}
