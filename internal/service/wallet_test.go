package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/models"
	"fanbeat-backend/internal/repository"
)

func newWalletFixture(t *testing.T, network string) (*WalletService, *repository.InMemoryStore, *stubGateway, *stubFunder) {
	t.Helper()
	store := repository.NewInMemoryStore()
	vault := newTestVault(t)
	gw := newStubGateway()
	funder := newStubFunder(gw)
	svc := NewWalletService(store, vault, funder, gw, network, testFriendbot)
	return svc, store, gw, funder
}

func TestEnsureWalletCreatesAndFunds(t *testing.T) {
	svc, store, gw, funder := newWalletFixture(t, "testnet")
	userID := uuid.New()

	wallet, created, err := svc.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, wallet.PublicKey)
	assert.True(t, wallet.IsFunded)
	assert.Equal(t, 1, funder.callCount())
	assert.True(t, gw.existing[wallet.PublicKey])

	stored, err := store.GetWalletByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, stored.IsFunded)
	assert.NotEmpty(t, stored.SecretKeyEncrypted)
	assert.NotEqual(t, wallet.PublicKey, stored.SecretKeyEncrypted)
}

func TestEnsureWalletIsIdempotent(t *testing.T) {
	svc, _, _, funder := newWalletFixture(t, "testnet")
	userID := uuid.New()

	first, created, err := svc.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.EnsureWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PublicKey, second.PublicKey)
	assert.Equal(t, 1, funder.callCount(), "existing wallet must not trigger funding")
}

func TestEnsureWalletToleratesFundingFailure(t *testing.T) {
	svc, store, _, funder := newWalletFixture(t, "testnet")
	funder.failAll = true

	userID := uuid.New()
	wallet, created, err := svc.EnsureWallet(context.Background(), userID)
	require.NoError(t, err, "funding failure must not fail wallet creation")
	assert.True(t, created)
	assert.False(t, wallet.IsFunded)

	stored, err := store.GetWalletByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, stored.IsFunded)
}

func TestEnsureWalletSkipsFundingOffTestnet(t *testing.T) {
	svc, _, _, funder := newWalletFixture(t, "mainnet")

	wallet, created, err := svc.EnsureWallet(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, wallet.IsFunded)
	assert.Zero(t, funder.callCount(), "no friendbot call off testnet")
}

func TestEnsureWalletRejectsNilUser(t *testing.T) {
	svc, _, _, _ := newWalletFixture(t, "testnet")

	_, _, err := svc.EnsureWallet(context.Background(), uuid.Nil)
	var validation *apperr.ValidationError
	assert.ErrorAs(t, err, &validation)
}

// raceWalletStore simulates losing the create race: the first lookup misses,
// the insert hits the unique constraint, and the re-select finds the winner.
type raceWalletStore struct {
	repository.WalletStore
	winner  *models.Wallet
	lookups int
}

func (s *raceWalletStore) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	s.lookups++
	if s.lookups == 1 {
		return nil, apperr.NotFound("wallet")
	}
	return s.winner, nil
}

func (s *raceWalletStore) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return apperr.ErrWalletExists
}

func TestEnsureWalletResolvesCreateRace(t *testing.T) {
	_, store, gw, funder := newWalletFixture(t, "testnet")
	vault := newTestVault(t)

	winner := &models.Wallet{ID: uuid.New(), UserID: uuid.New(), PublicKey: "GWINNER", Network: "testnet"}
	race := &raceWalletStore{WalletStore: store, winner: winner}
	svc := NewWalletService(race, vault, funder, gw, "testnet", testFriendbot)

	wallet, created, err := svc.EnsureWallet(context.Background(), winner.UserID)
	require.NoError(t, err)
	assert.False(t, created, "the race loser must report the winner's wallet")
	assert.Equal(t, "GWINNER", wallet.PublicKey)
	assert.Zero(t, funder.callCount(), "the loser must not fund the winner's account")
}

func TestWalletStatusRefreshesFundedCache(t *testing.T) {
	svc, store, gw, _ := newWalletFixture(t, "testnet")
	vault := newTestVault(t)
	wallet, _ := seedWallet(t, store, vault)

	gw.existing[wallet.PublicKey] = true
	gw.native[wallet.PublicKey] = 10000

	status, err := svc.Status(context.Background(), wallet.UserID)
	require.NoError(t, err)
	assert.True(t, status.IsFunded)
	assert.Equal(t, float64(10000), status.NativeBalance)
	assert.Empty(t, status.FundingURL)

	stored, err := store.GetWalletByUserID(context.Background(), wallet.UserID)
	require.NoError(t, err)
	assert.True(t, stored.IsFunded, "cache must be refreshed from ledger state")
}

func TestWalletStatusUnfunded(t *testing.T) {
	svc, store, _, _ := newWalletFixture(t, "testnet")
	vault := newTestVault(t)
	wallet, _ := seedWallet(t, store, vault)

	status, err := svc.Status(context.Background(), wallet.UserID)
	require.NoError(t, err)
	assert.False(t, status.IsFunded)
	assert.Equal(t, testFriendbot+"?addr="+wallet.PublicKey, status.FundingURL)
}

func TestWalletStatusMissingWallet(t *testing.T) {
	svc, _, _, _ := newWalletFixture(t, "testnet")

	_, err := svc.Status(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}
