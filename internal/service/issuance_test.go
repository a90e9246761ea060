package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanbeat-backend/internal/repository"
	"fanbeat-backend/internal/stellar"
)

const testFriendbot = "https://friendbot.stellar.org"

func newIssuanceFixture(t *testing.T) (*IssuanceService, *repository.InMemoryStore, *stubGateway, *stubFunder) {
	t.Helper()
	store := repository.NewInMemoryStore()
	vault := newTestVault(t)
	gw := newStubGateway()
	funder := newStubFunder(gw)
	svc := NewIssuanceService(store, vault, gw, stellar.NewCoordinator(funder), testFriendbot)
	return svc, store, gw, funder
}

func TestIssueAssetFullPipeline(t *testing.T) {
	svc, store, gw, _ := newIssuanceFixture(t)
	vault := newTestVault(t)
	asset, _, _ := seedArtistAsset(t, store, vault)

	steps, err := svc.IssueAsset(context.Background(), asset.ArtistID)
	require.NoError(t, err)
	require.Len(t, steps, 4)

	for _, name := range []string{"fund_issuer", "fund_distributor", "create_trustline", "issue_tokens"} {
		step, ok := stepByName(steps, name)
		require.True(t, ok, "missing step %s", name)
		assert.Equal(t, StepSuccess, step.Status, "step %s", name)
	}

	hasTrustline, err := gw.HasTrustline(context.Background(), asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)
	require.NoError(t, err)
	assert.True(t, hasTrustline)

	balance, err := gw.AssetBalance(context.Background(), asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)
	require.NoError(t, err)
	assert.Equal(t, float64(1000000), balance)

	// Trustline signed by the distributor, issuance by the issuer.
	require.Equal(t, 2, gw.submissionCount())
	assert.Equal(t, asset.DistributorPublicKey, gw.submissions[0].signer)
	assert.Equal(t, asset.IssuerPublicKey, gw.submissions[1].signer)
}

func TestIssueAssetHaltsOnPartialFundingFailure(t *testing.T) {
	svc, store, gw, funder := newIssuanceFixture(t)
	vault := newTestVault(t)
	asset, _, _ := seedArtistAsset(t, store, vault)

	funder.failOn[asset.DistributorPublicKey] = true

	steps, err := svc.IssueAsset(context.Background(), asset.ArtistID)
	require.ErrorIs(t, err, ErrFundingIncomplete)

	issuerStep, ok := stepByName(steps, "fund_issuer")
	require.True(t, ok)
	assert.Equal(t, StepSuccess, issuerStep.Status)

	distributorStep, ok := stepByName(steps, "fund_distributor")
	require.True(t, ok)
	assert.Equal(t, StepFailed, distributorStep.Status)
	assert.NotEmpty(t, distributorStep.Detail)

	_, hasTrustlineStep := stepByName(steps, "create_trustline")
	assert.False(t, hasTrustlineStep, "trustline step must not run after a funding failure")
	assert.Zero(t, gw.submissionCount(), "no ledger submission after a funding failure")
}

func TestIssueAssetIsIdempotent(t *testing.T) {
	svc, store, gw, funder := newIssuanceFixture(t)
	vault := newTestVault(t)
	asset, _, _ := seedArtistAsset(t, store, vault)

	_, err := svc.IssueAsset(context.Background(), asset.ArtistID)
	require.NoError(t, err)
	firstRunSubmissions := gw.submissionCount()
	firstRunFundCalls := funder.callCount()

	steps, err := svc.IssueAsset(context.Background(), asset.ArtistID)
	require.NoError(t, err)

	for _, name := range []string{"fund_issuer", "fund_distributor", "create_trustline", "issue_tokens"} {
		step, ok := stepByName(steps, name)
		require.True(t, ok, "missing step %s", name)
		assert.Equal(t, StepAlreadyDone, step.Status, "step %s", name)
	}

	assert.Equal(t, firstRunSubmissions, gw.submissionCount(), "second run must not submit again")
	assert.Equal(t, firstRunFundCalls, funder.callCount(), "second run must not fund again")

	balance, err := gw.AssetBalance(context.Background(), asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)
	require.NoError(t, err)
	assert.Equal(t, float64(1000000), balance, "supply must not be issued twice")
}

func TestIssueAssetResumesAfterTrustline(t *testing.T) {
	svc, store, gw, _ := newIssuanceFixture(t)
	vault := newTestVault(t)
	asset, _, _ := seedArtistAsset(t, store, vault)

	// Accounts already funded and trustline already present: only issuance
	// remains.
	gw.existing[asset.IssuerPublicKey] = true
	gw.existing[asset.DistributorPublicKey] = true
	gw.trustlines[assetKey(asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)] = true

	steps, err := svc.IssueAsset(context.Background(), asset.ArtistID)
	require.NoError(t, err)

	trustlineStep, ok := stepByName(steps, "create_trustline")
	require.True(t, ok)
	assert.Equal(t, StepAlreadyDone, trustlineStep.Status)

	issueStep, ok := stepByName(steps, "issue_tokens")
	require.True(t, ok)
	assert.Equal(t, StepSuccess, issueStep.Status)
	assert.Equal(t, 1, gw.submissionCount())
}

func TestIssueAssetUnknownArtist(t *testing.T) {
	svc, _, _, _ := newIssuanceFixture(t)

	_, err := svc.IssueAsset(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestCheckFunding(t *testing.T) {
	svc, store, gw, _ := newIssuanceFixture(t)
	vault := newTestVault(t)
	asset, _, _ := seedArtistAsset(t, store, vault)

	gw.existing[asset.IssuerPublicKey] = true

	status, err := svc.CheckFunding(context.Background(), asset.ArtistID)
	require.NoError(t, err)

	assert.True(t, status.IssuerFunded)
	assert.False(t, status.DistributorFunded)
	assert.False(t, status.BothFunded)
	assert.Equal(t, testFriendbot+"?addr="+asset.IssuerPublicKey, status.IssuerFundingURL)
	assert.Equal(t, testFriendbot+"?addr="+asset.DistributorPublicKey, status.DistributorFundingURL)
}
