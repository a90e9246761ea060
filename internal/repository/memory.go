package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/models"
)

// InMemoryStore is an in-memory implementation of Store, used in tests. It
// mirrors the Postgres implementation's error semantics, including the
// unique-violation on wallet creation and the conditional supply decrement.
type InMemoryStore struct {
	mu        sync.RWMutex
	tokens    map[uuid.UUID]*models.ArtistToken // keyed by artist ID
	assets    map[uuid.UUID]*models.ArtistAsset // keyed by asset ID
	listings  map[uuid.UUID]*models.Listing
	wallets   map[uuid.UUID]*models.Wallet // keyed by user ID
	balances  map[uuid.UUID]*models.FanTokenBalance
	purchases map[uuid.UUID]*models.Purchase
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tokens:    make(map[uuid.UUID]*models.ArtistToken),
		assets:    make(map[uuid.UUID]*models.ArtistAsset),
		listings:  make(map[uuid.UUID]*models.Listing),
		wallets:   make(map[uuid.UUID]*models.Wallet),
		balances:  make(map[uuid.UUID]*models.FanTokenBalance),
		purchases: make(map[uuid.UUID]*models.Purchase),
	}
}

// --- AssetStore ---

func (s *InMemoryStore) CreateArtistToken(ctx context.Context, token *models.ArtistToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.ArtistID]; exists {
		return &apperr.PersistenceError{Op: "create artist token", Err: errors.New("token already exists for artist")}
	}
	copied := *token
	s.tokens[token.ArtistID] = &copied
	return nil
}

func (s *InMemoryStore) GetArtistTokenByArtistID(ctx context.Context, artistID uuid.UUID) (*models.ArtistToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, exists := s.tokens[artistID]
	if !exists {
		return nil, apperr.NotFound("artist token")
	}
	copied := *token
	return &copied, nil
}

func (s *InMemoryStore) CreateArtistAsset(ctx context.Context, asset *models.ArtistAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assets {
		if existing.ArtistID == asset.ArtistID && existing.Network == asset.Network {
			return &apperr.PersistenceError{Op: "create artist asset", Err: errors.New("asset already exists for artist on network")}
		}
	}
	copied := *asset
	s.assets[asset.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetArtistAssetByArtistID(ctx context.Context, artistID uuid.UUID) (*models.ArtistAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.assets {
		if asset.ArtistID == artistID {
			copied := *asset
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("stellar asset")
}

func (s *InMemoryStore) GetArtistAssetByID(ctx context.Context, id uuid.UUID) (*models.ArtistAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, exists := s.assets[id]
	if !exists {
		return nil, apperr.NotFound("stellar asset")
	}
	copied := *asset
	return &copied, nil
}

func (s *InMemoryStore) AssetCodeExists(ctx context.Context, assetCode, network string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.assets {
		if asset.AssetCode == assetCode && asset.Network == network {
			return true, nil
		}
	}
	return false, nil
}

// --- ListingStore ---

func (s *InMemoryStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listing.IsActive {
		for _, existing := range s.listings {
			if existing.ArtistID == listing.ArtistID && existing.TokenID == listing.TokenID && existing.IsActive {
				return &apperr.PersistenceError{Op: "create listing", Err: errors.New("an active listing already exists")}
			}
		}
	}
	copied := *listing
	s.listings[listing.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	listing, exists := s.listings[id]
	if !exists {
		return nil, apperr.NotFound("listing")
	}
	copied := *listing
	return &copied, nil
}

func (s *InMemoryStore) GetActiveListing(ctx context.Context, artistID, tokenID uuid.UUID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, listing := range s.listings {
		if listing.ArtistID == artistID && listing.TokenID == tokenID && listing.IsActive {
			copied := *listing
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("listing")
}

func (s *InMemoryStore) DecrementListingSupply(ctx context.Context, id uuid.UUID, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, exists := s.listings[id]
	if !exists {
		return &apperr.PersistenceError{Op: "decrement supply", Err: errors.New("listing not found")}
	}
	if listing.AvailableSupply < quantity {
		return &apperr.PersistenceError{Op: "decrement supply", Err: errors.New("insufficient available supply")}
	}
	listing.AvailableSupply -= quantity
	return nil
}

// --- WalletStore ---

func (s *InMemoryStore) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[wallet.UserID]; exists {
		return apperr.ErrWalletExists
	}
	copied := *wallet
	s.wallets[wallet.UserID] = &copied
	return nil
}

func (s *InMemoryStore) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallet, exists := s.wallets[userID]
	if !exists {
		return nil, apperr.NotFound("wallet")
	}
	copied := *wallet
	return &copied, nil
}

func (s *InMemoryStore) SetWalletFunded(ctx context.Context, id uuid.UUID, funded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wallet := range s.wallets {
		if wallet.ID == id {
			wallet.IsFunded = funded
			return nil
		}
	}
	return &apperr.PersistenceError{Op: "set wallet funded", Err: errors.New("wallet not found")}
}

// --- BalanceStore ---

func (s *InMemoryStore) GetFanBalance(ctx context.Context, fanID, tokenID uuid.UUID) (*models.FanTokenBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, balance := range s.balances {
		if balance.FanID == fanID && balance.TokenID == tokenID {
			copied := *balance
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("fan token balance")
}

func (s *InMemoryStore) CreateFanBalance(ctx context.Context, balance *models.FanTokenBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *balance
	s.balances[balance.ID] = &copied
	return nil
}

func (s *InMemoryStore) UpdateFanBalance(ctx context.Context, balance *models.FanTokenBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.balances[balance.ID]; !exists {
		return &apperr.PersistenceError{Op: "update fan balance", Err: errors.New("balance not found")}
	}
	copied := *balance
	s.balances[balance.ID] = &copied
	return nil
}

// --- PurchaseStore ---

func (s *InMemoryStore) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *purchase
	s.purchases[purchase.ID] = &copied
	return nil
}

// Purchases returns all recorded purchases. Test helper.
func (s *InMemoryStore) Purchases() []*models.Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		copied := *p
		out = append(out, &copied)
	}
	return out
}
