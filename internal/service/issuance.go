package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"fanbeat-backend/internal/keyvault"
	"fanbeat-backend/internal/models"
	"fanbeat-backend/internal/repository"
	"fanbeat-backend/internal/stellar"
)

// InitialSupply is the fixed amount of tokens the issuer pays the distributor
// when the asset goes live.
const InitialSupply = "1000000"

// issuanceTimeout bounds each ledger submission during issuance.
const issuanceTimeout = 180 * time.Second

// ErrFundingIncomplete signals that one or both accounts could not be funded.
// Recoverable: the caller funds manually and re-runs the pipeline.
var ErrFundingIncomplete = errors.New("account funding incomplete")

// IssuanceService drives an artist asset through
// Unfunded -> Funded -> TrustlineEstablished -> Issued.
//
// Each run checks external state before acting, so re-running after a partial
// failure resumes at the first incomplete step and never duplicates a trust
// operation or the issuance payment.
type IssuanceService struct {
	store        repository.AssetStore
	vault        *keyvault.Vault
	gateway      stellar.Gateway
	coordinator  *stellar.Coordinator
	friendbotURL string
}

// NewIssuanceService creates an IssuanceService.
func NewIssuanceService(store repository.AssetStore, vault *keyvault.Vault, gateway stellar.Gateway, coordinator *stellar.Coordinator, friendbotURL string) *IssuanceService {
	return &IssuanceService{
		store:        store,
		vault:        vault,
		gateway:      gateway,
		coordinator:  coordinator,
		friendbotURL: friendbotURL,
	}
}

// IssueAsset runs the issuance pipeline for the artist's asset and returns
// the step trace. The trace is returned alongside any error so callers can
// see exactly which step halted the pipeline.
func (s *IssuanceService) IssueAsset(ctx context.Context, artistID uuid.UUID) ([]StepResult, error) {
	asset, err := s.store.GetArtistAssetByArtistID(ctx, artistID)
	if err != nil {
		return nil, err
	}

	var steps []StepResult

	// Step 1: both accounts funded.
	steps, fundedOK := s.ensureFunded(ctx, asset, steps)
	if !fundedOK {
		return steps, ErrFundingIncomplete
	}

	// Step 2: distributor trusts the asset.
	hasTrustline, err := s.gateway.HasTrustline(ctx, asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)
	if err != nil {
		steps = append(steps, StepResult{Step: "create_trustline", Status: StepFailed, Detail: err.Error()})
		return steps, err
	}
	if hasTrustline {
		steps = append(steps, StepResult{Step: "create_trustline", Status: StepAlreadyDone})
	} else {
		hash, err := s.submitTrustline(ctx, asset)
		if err != nil {
			steps = append(steps, StepResult{Step: "create_trustline", Status: StepFailed, Detail: err.Error()})
			return steps, err
		}
		steps = append(steps, StepResult{Step: "create_trustline", Status: StepSuccess, Hash: hash})
	}

	// Step 3: issue the initial supply. A nonzero distributor balance means
	// issuance already happened; never pay out the supply twice.
	balance, err := s.gateway.AssetBalance(ctx, asset.DistributorPublicKey, asset.AssetCode, asset.IssuerPublicKey)
	if err != nil {
		steps = append(steps, StepResult{Step: "issue_tokens", Status: StepFailed, Detail: err.Error()})
		return steps, err
	}
	if balance > 0 {
		steps = append(steps, StepResult{Step: "issue_tokens", Status: StepAlreadyDone})
		return steps, nil
	}

	hash, err := s.submitIssuance(ctx, asset)
	if err != nil {
		steps = append(steps, StepResult{Step: "issue_tokens", Status: StepFailed, Detail: err.Error()})
		return steps, err
	}
	steps = append(steps, StepResult{Step: "issue_tokens", Status: StepSuccess, Hash: hash})

	log.Printf("[issuance] asset %s is live, issuer %s", asset.AssetCode, asset.IssuerPublicKey)
	return steps, nil
}

// ensureFunded checks both accounts and funds whichever is missing,
// concurrently. The two fund steps are reported separately so a partial
// failure is visible and only the failed account needs a retry.
func (s *IssuanceService) ensureFunded(ctx context.Context, asset *models.ArtistAsset, steps []StepResult) ([]StepResult, bool) {
	issuerExists := s.gateway.AccountExists(ctx, asset.IssuerPublicKey)
	distributorExists := s.gateway.AccountExists(ctx, asset.DistributorPublicKey)

	results := map[string]stellar.FundResult{}
	var missing []string
	if !issuerExists {
		missing = append(missing, asset.IssuerPublicKey)
	}
	if !distributorExists {
		missing = append(missing, asset.DistributorPublicKey)
	}
	if len(missing) > 0 {
		for _, result := range s.coordinator.FundAccounts(ctx, missing...) {
			results[result.PublicKey] = result
		}
	}

	stepFor := func(name, publicKey string, existed bool) (StepResult, bool) {
		if existed {
			return StepResult{Step: name, Status: StepAlreadyDone}, true
		}
		result := results[publicKey]
		if result.OK() {
			return StepResult{Step: name, Status: StepSuccess}, true
		}
		return StepResult{Step: name, Status: StepFailed, Detail: result.Err.Error()}, false
	}

	issuerStep, issuerOK := stepFor("fund_issuer", asset.IssuerPublicKey, issuerExists)
	distributorStep, distributorOK := stepFor("fund_distributor", asset.DistributorPublicKey, distributorExists)
	steps = append(steps, issuerStep, distributorStep)

	return steps, issuerOK && distributorOK
}

func (s *IssuanceService) submitTrustline(ctx context.Context, asset *models.ArtistAsset) (string, error) {
	secret, err := s.vault.Decrypt(asset.DistribSecretEncrypted)
	if err != nil {
		return "", err
	}
	distributor, err := keypair.ParseFull(secret)
	if err != nil {
		return "", fmt.Errorf("parse distributor keypair: %w", err)
	}

	line, err := txnbuild.CreditAsset{Code: asset.AssetCode, Issuer: asset.IssuerPublicKey}.ToChangeTrustAsset()
	if err != nil {
		return "", fmt.Errorf("build trust asset: %w", err)
	}

	return s.gateway.Submit(ctx, asset.DistributorPublicKey, distributor, issuanceTimeout, &txnbuild.ChangeTrust{
		Line:  line,
		Limit: txnbuild.MaxTrustlineLimit,
	})
}

func (s *IssuanceService) submitIssuance(ctx context.Context, asset *models.ArtistAsset) (string, error) {
	secret, err := s.vault.Decrypt(asset.IssuerSecretEncrypted)
	if err != nil {
		return "", err
	}
	issuer, err := keypair.ParseFull(secret)
	if err != nil {
		return "", fmt.Errorf("parse issuer keypair: %w", err)
	}

	return s.gateway.Submit(ctx, asset.IssuerPublicKey, issuer, issuanceTimeout, &txnbuild.Payment{
		Destination: asset.DistributorPublicKey,
		Amount:      InitialSupply,
		Asset:       txnbuild.CreditAsset{Code: asset.AssetCode, Issuer: asset.IssuerPublicKey},
	})
}

// FundingStatus is the live funding state of an artist's accounts, with
// manual friendbot URLs for when automatic funding keeps failing.
type FundingStatus struct {
	AssetCode             string `json:"assetCode"`
	IssuerPublicKey       string `json:"issuerPublicKey"`
	DistributorPublicKey  string `json:"distributorPublicKey"`
	Network               string `json:"network"`
	IssuerFunded          bool   `json:"issuerFunded"`
	DistributorFunded     bool   `json:"distributorFunded"`
	BothFunded            bool   `json:"bothFunded"`
	IssuerFundingURL      string `json:"issuerFundingUrl"`
	DistributorFundingURL string `json:"distributorFundingUrl"`
}

// CheckFunding queries the ledger for the funding state of the artist's
// issuer and distributor accounts.
func (s *IssuanceService) CheckFunding(ctx context.Context, artistID uuid.UUID) (*FundingStatus, error) {
	asset, err := s.store.GetArtistAssetByArtistID(ctx, artistID)
	if err != nil {
		return nil, err
	}

	issuerFunded := s.gateway.AccountExists(ctx, asset.IssuerPublicKey)
	distributorFunded := s.gateway.AccountExists(ctx, asset.DistributorPublicKey)

	return &FundingStatus{
		AssetCode:             asset.AssetCode,
		IssuerPublicKey:       asset.IssuerPublicKey,
		DistributorPublicKey:  asset.DistributorPublicKey,
		Network:               asset.Network,
		IssuerFunded:          issuerFunded,
		DistributorFunded:     distributorFunded,
		BothFunded:            issuerFunded && distributorFunded,
		IssuerFundingURL:      stellar.FundingURL(s.friendbotURL, asset.IssuerPublicKey),
		DistributorFundingURL: stellar.FundingURL(s.friendbotURL, asset.DistributorPublicKey),
	}, nil
}
