package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/keyvault"
	"fanbeat-backend/internal/models"
	"fanbeat-backend/internal/repository"
	"fanbeat-backend/internal/stellar"
)

// settlementTimeout bounds buyer-facing ledger submissions.
const settlementTimeout = 30 * time.Second

// MarketplaceService settles token purchases: precondition checks, trustline
// on demand, the distributor payment, and local bookkeeping.
type MarketplaceService struct {
	store        repository.Store
	vault        *keyvault.Vault
	gateway      stellar.Gateway
	network      string
	friendbotURL string
}

// NewMarketplaceService creates a MarketplaceService.
func NewMarketplaceService(store repository.Store, vault *keyvault.Vault, gateway stellar.Gateway, network, friendbotURL string) *MarketplaceService {
	return &MarketplaceService{
		store:        store,
		vault:        vault,
		gateway:      gateway,
		network:      network,
		friendbotURL: friendbotURL,
	}
}

// Purchase buys quantity tokens from a listing for the given buyer.
//
// Preconditions are checked in order before any ledger call: active listing,
// sufficient supply, buyer wallet present, buyer account funded. The token
// transfer is the irreversible step: once its transaction hash is returned
// the purchase is ledger-committed, and bookkeeping failures after it are
// logged and swallowed rather than reported as a failed purchase. The ledger
// is the source of truth; the local mirror may drift until reconciled.
func (s *MarketplaceService) Purchase(ctx context.Context, listingID, buyerID uuid.UUID, quantity int64) (*models.Purchase, []StepResult, error) {
	if quantity <= 0 {
		return nil, nil, apperr.Validationf("quantity must be positive")
	}

	listing, err := s.store.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, nil, err
	}
	if !listing.IsActive {
		return nil, nil, apperr.NotFound("active listing")
	}
	if quantity > listing.AvailableSupply {
		return nil, nil, apperr.Validationf("insufficient tokens available: %d requested, %d left", quantity, listing.AvailableSupply)
	}

	wallet, err := s.store.GetWalletByUserID(ctx, buyerID)
	if err != nil {
		return nil, nil, err
	}

	if !s.gateway.AccountExists(ctx, wallet.PublicKey) {
		notFunded := &apperr.AccountNotFundedError{PublicKey: wallet.PublicKey}
		if s.network == "testnet" {
			notFunded.FundingURL = stellar.FundingURL(s.friendbotURL, wallet.PublicKey)
		}
		return nil, nil, notFunded
	}

	asset, err := s.store.GetArtistAssetByID(ctx, listing.AssetID)
	if err != nil {
		return nil, nil, err
	}

	var steps []StepResult

	// Trustline on demand, signed by the buyer's own key.
	hasTrustline, err := s.gateway.HasTrustline(ctx, wallet.PublicKey, asset.AssetCode, asset.IssuerPublicKey)
	if err != nil {
		return nil, steps, err
	}
	if hasTrustline {
		steps = append(steps, StepResult{Step: "create_trustline", Status: StepAlreadyDone})
	} else {
		hash, err := s.submitBuyerTrustline(ctx, wallet, asset)
		if err != nil {
			steps = append(steps, StepResult{Step: "create_trustline", Status: StepFailed, Detail: err.Error()})
			return nil, steps, err
		}
		steps = append(steps, StepResult{Step: "create_trustline", Status: StepSuccess, Hash: hash})
	}

	// The money-moving operation.
	hash, err := s.submitTransfer(ctx, wallet, asset, quantity)
	if err != nil {
		steps = append(steps, StepResult{Step: "transfer_tokens", Status: StepFailed, Detail: err.Error()})
		return nil, steps, err
	}
	steps = append(steps, StepResult{Step: "transfer_tokens", Status: StepSuccess, Hash: hash})

	purchase := &models.Purchase{
		ID:              uuid.New(),
		ListingID:       listing.ID,
		BuyerID:         buyerID,
		Quantity:        quantity,
		PricePerToken:   listing.PriceXLM,
		TotalPrice:      listing.PriceXLM * float64(quantity),
		TransactionHash: hash,
		Status:          "completed",
		CreatedAt:       time.Now(),
	}

	// Bookkeeping after the transfer is best-effort. The tokens moved; a
	// failed cache update must not surface as a failed purchase.
	if err := s.store.CreatePurchase(ctx, purchase); err != nil {
		log.Printf("[marketplace] purchase record failed after transfer %s: %v", hash, err)
	}
	if err := s.store.DecrementListingSupply(ctx, listing.ID, quantity); err != nil {
		log.Printf("[marketplace] supply decrement failed after transfer %s: %v", hash, err)
	}
	if err := s.upsertFanBalance(ctx, buyerID, listing, asset, quantity); err != nil {
		log.Printf("[marketplace] balance update failed after transfer %s: %v", hash, err)
	}
	steps = append(steps, StepResult{Step: "update_records", Status: StepSuccess})

	return purchase, steps, nil
}

func (s *MarketplaceService) submitBuyerTrustline(ctx context.Context, wallet *models.Wallet, asset *models.ArtistAsset) (string, error) {
	secret, err := s.vault.Decrypt(wallet.SecretKeyEncrypted)
	if err != nil {
		return "", err
	}
	buyer, err := keypair.ParseFull(secret)
	if err != nil {
		return "", fmt.Errorf("parse buyer keypair: %w", err)
	}

	line, err := txnbuild.CreditAsset{Code: asset.AssetCode, Issuer: asset.IssuerPublicKey}.ToChangeTrustAsset()
	if err != nil {
		return "", fmt.Errorf("build trust asset: %w", err)
	}

	return s.gateway.Submit(ctx, wallet.PublicKey, buyer, settlementTimeout, &txnbuild.ChangeTrust{
		Line:  line,
		Limit: txnbuild.MaxTrustlineLimit,
	})
}

func (s *MarketplaceService) submitTransfer(ctx context.Context, wallet *models.Wallet, asset *models.ArtistAsset, quantity int64) (string, error) {
	secret, err := s.vault.Decrypt(asset.DistribSecretEncrypted)
	if err != nil {
		return "", err
	}
	distributor, err := keypair.ParseFull(secret)
	if err != nil {
		return "", fmt.Errorf("parse distributor keypair: %w", err)
	}

	return s.gateway.Submit(ctx, asset.DistributorPublicKey, distributor, settlementTimeout, &txnbuild.Payment{
		Destination: wallet.PublicKey,
		Amount:      strconv.FormatInt(quantity, 10),
		Asset:       txnbuild.CreditAsset{Code: asset.AssetCode, Issuer: asset.IssuerPublicKey},
	})
}

// upsertFanBalance maintains the local mirror of the buyer's trustline
// balance, recomputing the running weighted average purchase price.
func (s *MarketplaceService) upsertFanBalance(ctx context.Context, buyerID uuid.UUID, listing *models.Listing, asset *models.ArtistAsset, quantity int64) error {
	existing, err := s.store.GetFanBalance(ctx, buyerID, listing.TokenID)
	if isNotFound(err) {
		return s.store.CreateFanBalance(ctx, &models.FanTokenBalance{
			ID:             uuid.New(),
			FanID:          buyerID,
			TokenID:        listing.TokenID,
			AssetID:        asset.ID,
			Balance:        quantity,
			TotalPurchased: quantity,
			AvgPurchaseXLM: listing.PriceXLM,
			HasTrustline:   true,
			UpdatedAt:      time.Now(),
		})
	}
	if err != nil {
		return err
	}

	newTotal := existing.TotalPurchased + quantity
	existing.AvgPurchaseXLM = (existing.AvgPurchaseXLM*float64(existing.TotalPurchased) +
		listing.PriceXLM*float64(quantity)) / float64(newTotal)
	existing.Balance += quantity
	existing.TotalPurchased = newTotal
	existing.HasTrustline = true
	existing.UpdatedAt = time.Now()

	return s.store.UpdateFanBalance(ctx, existing)
}
