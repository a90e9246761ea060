package repository

import (
	"context"

	"github.com/google/uuid"

	"fanbeat-backend/internal/models"
)

// AssetStore persists artist tokens and their on-ledger asset records.
// Lookups return *apperr.NotFoundError when no row matches.
type AssetStore interface {
	CreateArtistToken(ctx context.Context, token *models.ArtistToken) error
	GetArtistTokenByArtistID(ctx context.Context, artistID uuid.UUID) (*models.ArtistToken, error)
	CreateArtistAsset(ctx context.Context, asset *models.ArtistAsset) error
	GetArtistAssetByArtistID(ctx context.Context, artistID uuid.UUID) (*models.ArtistAsset, error)
	GetArtistAssetByID(ctx context.Context, id uuid.UUID) (*models.ArtistAsset, error)
	AssetCodeExists(ctx context.Context, assetCode, network string) (bool, error)
}

// ListingStore persists marketplace listings.
type ListingStore interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	GetActiveListing(ctx context.Context, artistID, tokenID uuid.UUID) (*models.Listing, error)

	// DecrementListingSupply atomically subtracts quantity from the listing's
	// available supply, failing instead of going negative.
	DecrementListingSupply(ctx context.Context, id uuid.UUID, quantity int64) error
}

// WalletStore persists custodial user wallets. CreateWallet returns
// apperr.ErrWalletExists on a unique violation so callers can resolve
// concurrent creation races.
type WalletStore interface {
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	SetWalletFunded(ctx context.Context, id uuid.UUID, funded bool) error
}

// BalanceStore persists the local bookkeeping mirror of fan trustline
// balances.
type BalanceStore interface {
	GetFanBalance(ctx context.Context, fanID, tokenID uuid.UUID) (*models.FanTokenBalance, error)
	CreateFanBalance(ctx context.Context, balance *models.FanTokenBalance) error
	UpdateFanBalance(ctx context.Context, balance *models.FanTokenBalance) error
}

// PurchaseStore records completed purchases.
type PurchaseStore interface {
	CreatePurchase(ctx context.Context, purchase *models.Purchase) error
}

// Store aggregates all persistence capabilities for dependency injection.
type Store interface {
	AssetStore
	ListingStore
	WalletStore
	BalanceStore
	PurchaseStore
}
