package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/models"
	"fanbeat-backend/internal/repository"
)

type settlementFixture struct {
	svc     *MarketplaceService
	store   *repository.InMemoryStore
	gw      *stubGateway
	asset   *models.ArtistAsset
	listing *models.Listing
	wallet  *models.Wallet
}

func newSettlementFixture(t *testing.T, priceXLM float64, supply int64) *settlementFixture {
	t.Helper()

	store := repository.NewInMemoryStore()
	vault := newTestVault(t)
	gw := newStubGateway()

	asset, _, _ := seedArtistAsset(t, store, vault)
	wallet, _ := seedWallet(t, store, vault)

	listing := &models.Listing{
		ID:              uuid.New(),
		ArtistID:        asset.ArtistID,
		TokenID:         asset.TokenID,
		AssetID:         asset.ID,
		PriceXLM:        priceXLM,
		TotalSupply:     supply,
		AvailableSupply: supply,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, store.CreateListing(context.Background(), listing))

	// Distributor funded and holding float; buyer funded.
	gw.existing[asset.DistributorPublicKey] = true
	gw.existing[wallet.PublicKey] = true
	gw.balances[assetKey(asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)] = 1000000

	return &settlementFixture{
		svc:     NewMarketplaceService(store, vault, gw, "testnet", testFriendbot),
		store:   store,
		gw:      gw,
		asset:   asset,
		listing: listing,
		wallet:  wallet,
	}
}

func TestPurchaseFirstTime(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)
	ctx := context.Background()

	purchase, steps, err := f.svc.Purchase(ctx, f.listing.ID, f.wallet.UserID, 10)
	require.NoError(t, err)
	require.NotNil(t, purchase)

	assert.Equal(t, int64(10), purchase.Quantity)
	assert.InDelta(t, 5.0, purchase.TotalPrice, 1e-9)
	assert.NotEmpty(t, purchase.TransactionHash)
	assert.Equal(t, "completed", purchase.Status)

	// Buyer had no trustline: one buyer-signed trust op, then the transfer.
	trustStep, ok := stepByName(steps, "create_trustline")
	require.True(t, ok)
	assert.Equal(t, StepSuccess, trustStep.Status)
	require.Equal(t, 2, f.gw.submissionCount())
	assert.Equal(t, f.wallet.PublicKey, f.gw.submissions[0].signer, "trustline is signed by the buyer")
	assert.Equal(t, f.asset.DistributorPublicKey, f.gw.submissions[1].signer, "transfer is signed by the distributor")

	// Bookkeeping: supply decremented, balance row created with unit price.
	listing, err := f.store.GetListingByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), listing.AvailableSupply)

	balance, err := f.store.GetFanBalance(ctx, f.wallet.UserID, f.listing.TokenID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.Balance)
	assert.Equal(t, int64(10), balance.TotalPurchased)
	assert.InDelta(t, 0.5, balance.AvgPurchaseXLM, 1e-9)
	assert.True(t, balance.HasTrustline)

	require.Len(t, f.store.Purchases(), 1)
}

func TestPurchaseWeightedAveragePrice(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)
	ctx := context.Background()

	_, _, err := f.svc.Purchase(ctx, f.listing.ID, f.wallet.UserID, 10)
	require.NoError(t, err)

	// A second listing of the same token at a different price.
	second := &models.Listing{
		ID:              uuid.New(),
		ArtistID:        uuid.New(),
		TokenID:         f.listing.TokenID,
		AssetID:         f.asset.ID,
		PriceXLM:        2.0,
		TotalSupply:     50,
		AvailableSupply: 50,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, f.store.CreateListing(ctx, second))

	_, _, err = f.svc.Purchase(ctx, second.ID, f.wallet.UserID, 4)
	require.NoError(t, err)

	balance, err := f.store.GetFanBalance(ctx, f.wallet.UserID, f.listing.TokenID)
	require.NoError(t, err)
	assert.Equal(t, int64(14), balance.Balance)
	assert.Equal(t, int64(14), balance.TotalPurchased)
	want := (0.5*10 + 2.0*4) / 14
	assert.InDelta(t, want, balance.AvgPurchaseXLM, 1e-9)
}

func TestPurchaseExistingTrustlineSkipsTrustOp(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)
	f.gw.trustlines[assetKey(f.wallet.PublicKey, f.asset.AssetCode, f.asset.IssuerPublicKey)] = true

	_, steps, err := f.svc.Purchase(context.Background(), f.listing.ID, f.wallet.UserID, 5)
	require.NoError(t, err)

	trustStep, ok := stepByName(steps, "create_trustline")
	require.True(t, ok)
	assert.Equal(t, StepAlreadyDone, trustStep.Status)
	assert.Equal(t, 1, f.gw.submissionCount(), "only the transfer is submitted")
}

func TestPurchaseRejectsOversell(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)

	_, _, err := f.svc.Purchase(context.Background(), f.listing.ID, f.wallet.UserID, 200)
	require.Error(t, err)

	var validation *apperr.ValidationError
	assert.True(t, errors.As(err, &validation))
	assert.Zero(t, f.gw.submissionCount(), "oversell must be rejected before any ledger call")

	listing, err := f.store.GetListingByID(context.Background(), f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), listing.AvailableSupply)
}

func TestPurchaseRejectsNonPositiveQuantity(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)

	for _, quantity := range []int64{0, -3} {
		_, _, err := f.svc.Purchase(context.Background(), f.listing.ID, f.wallet.UserID, quantity)
		var validation *apperr.ValidationError
		assert.True(t, errors.As(err, &validation), "quantity %d", quantity)
	}
	assert.Zero(t, f.gw.submissionCount())
}

func TestPurchaseUnfundedBuyer(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)
	f.gw.existing[f.wallet.PublicKey] = false

	_, _, err := f.svc.Purchase(context.Background(), f.listing.ID, f.wallet.UserID, 5)
	require.Error(t, err)

	var notFunded *apperr.AccountNotFundedError
	require.True(t, errors.As(err, &notFunded))
	assert.Equal(t, f.wallet.PublicKey, notFunded.PublicKey)
	assert.Equal(t, testFriendbot+"?addr="+f.wallet.PublicKey, notFunded.FundingURL)
	assert.Zero(t, f.gw.submissionCount(), "no trustline or transfer for an unfunded buyer")
}

func TestPurchaseMissingWallet(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)

	_, _, err := f.svc.Purchase(context.Background(), f.listing.ID, uuid.New(), 5)
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestPurchaseUnknownListing(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)

	_, _, err := f.svc.Purchase(context.Background(), uuid.New(), f.wallet.UserID, 5)
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

// failingPurchaseStore simulates a bookkeeping outage after the transfer.
type failingPurchaseStore struct {
	*repository.InMemoryStore
}

func (s *failingPurchaseStore) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return &apperr.PersistenceError{Op: "create purchase", Err: errors.New("database unavailable")}
}

func (s *failingPurchaseStore) DecrementListingSupply(ctx context.Context, id uuid.UUID, quantity int64) error {
	return &apperr.PersistenceError{Op: "decrement supply", Err: errors.New("database unavailable")}
}

func TestPurchaseSurvivesBookkeepingFailure(t *testing.T) {
	f := newSettlementFixture(t, 0.5, 100)
	failing := &failingPurchaseStore{InMemoryStore: f.store}
	vault := newTestVault(t)
	svc := NewMarketplaceService(failing, vault, f.gw, "testnet", testFriendbot)

	purchase, steps, err := svc.Purchase(context.Background(), f.listing.ID, f.wallet.UserID, 5)
	require.NoError(t, err, "a bookkeeping failure after the transfer must not fail the purchase")
	require.NotNil(t, purchase)
	assert.NotEmpty(t, purchase.TransactionHash)

	transferStep, ok := stepByName(steps, "transfer_tokens")
	require.True(t, ok)
	assert.Equal(t, StepSuccess, transferStep.Status)
}
