package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/auth"
	"fanbeat-backend/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Handler holds the dependencies for the HTTP handlers
type Handler struct {
	walletService      *service.WalletService
	artistTokenService *service.TokenService
	issuanceService    *service.IssuanceService
	marketplaceService *service.MarketplaceService
	tokenService       *auth.TokenService
	validate           *validator.Validate
	corsOrigin         string
}

// NewHandler creates a new Handler instance
func NewHandler(
	walletSvc *service.WalletService,
	artistTokenSvc *service.TokenService,
	issuanceSvc *service.IssuanceService,
	marketplaceSvc *service.MarketplaceService,
	tokenSvc *auth.TokenService,
	corsOrigin string,
) *Handler {
	return &Handler{
		walletService:      walletSvc,
		artistTokenService: artistTokenSvc,
		issuanceService:    issuanceSvc,
		marketplaceService: marketplaceSvc,
		tokenService:       tokenSvc,
		validate:           validator.New(),
		corsOrigin:         corsOrigin,
	}
}

// === Response helpers ===

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to serialize JSON response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"internal error serializing response"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithServiceError maps the service error taxonomy onto HTTP status
// codes. Unfunded accounts carry the friendbot URL so clients can recover.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, err error) {
	var validation *apperr.ValidationError
	var notFound *apperr.NotFoundError
	var notFunded *apperr.AccountNotFundedError
	var submission *apperr.SubmissionError

	switch {
	case errors.As(err, &validation):
		h.respondWithError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		h.respondWithError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &notFunded):
		h.respondWithJSON(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{
				"code":    http.StatusConflict,
				"message": notFunded.Error(),
			},
			"publicKey":  notFunded.PublicKey,
			"fundingUrl": notFunded.FundingURL,
		})
	case errors.Is(err, apperr.ErrUnsupportedNetwork):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &submission):
		h.respondWithError(w, http.StatusBadGateway, submission.Error())
	default:
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

// === Wallet handlers ===

// handleEnsureWallet (POST /wallet/ensure)
func (h *Handler) handleEnsureWallet(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	wallet, created, err := h.walletService.EnsureWallet(r.Context(), profileID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	h.respondWithJSON(w, code, map[string]interface{}{
		"publicKey": wallet.PublicKey,
		"network":   wallet.Network,
		"isFunded":  wallet.IsFunded,
		"created":   created,
	})
}

// handleWalletStatus (GET /wallet)
func (h *Handler) handleWalletStatus(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	status, err := h.walletService.Status(r.Context(), profileID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, status)
}

// === Artist handlers ===

// handleProvisionToken (POST /artist/token)
func (h *Handler) handleProvisionToken(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	var req struct {
		ArtistName string `json:"artistName" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result, err := h.artistTokenService.ProvisionArtistToken(r.Context(), profileID, req.ArtistName)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, result)
}

// handleTokenStatus (GET /artist/token)
func (h *Handler) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	status, err := h.artistTokenService.Status(r.Context(), profileID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, status)
}

// handleIssueAsset (POST /artist/issue)
//
// Incomplete funding is not an HTTP failure: the response reports the step
// trace plus the friendbot URLs so the artist can fund manually and retry.
func (h *Handler) handleIssueAsset(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	steps, err := h.issuanceService.IssueAsset(r.Context(), profileID)
	if errors.Is(err, service.ErrFundingIncomplete) {
		funding, fundErr := h.issuanceService.CheckFunding(r.Context(), profileID)
		if fundErr != nil {
			h.respondWithServiceError(w, fundErr)
			return
		}
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"issued":  false,
			"steps":   steps,
			"funding": funding,
		})
		return
	}
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"issued": true,
		"steps":  steps,
	})
}

// handleCheckFunding (GET /artist/funding)
func (h *Handler) handleCheckFunding(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	funding, err := h.issuanceService.CheckFunding(r.Context(), profileID)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, funding)
}

// handleCreateListing (POST /artist/listing)
func (h *Handler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	var req struct {
		PriceXLM float64 `json:"priceXlm" validate:"gte=0"`
		Supply   int64   `json:"supply" validate:"gte=0"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	listing, err := h.artistTokenService.CreateListing(r.Context(), profileID, req.PriceXLM, req.Supply)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, listing)
}

// === Marketplace handlers ===

// handleBuy (POST /marketplace/buy)
func (h *Handler) handleBuy(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "invalid profile context")
		return
	}

	var req struct {
		ListingID string `json:"listingId" validate:"required,uuid"`
		Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "listingId is not a valid UUID")
		return
	}

	purchase, steps, err := h.marketplaceService.Purchase(r.Context(), listingID, profileID, req.Quantity)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"purchase": purchase,
		"steps":    steps,
	})
}
