package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/keyvault"
	"fanbeat-backend/internal/models"
	"fanbeat-backend/internal/repository"
	"fanbeat-backend/internal/stellar"
)

// Listing defaults when the artist does not specify them.
const (
	DefaultListingPriceXLM = 0.1
	DefaultListingSupply   = 10000
)

// TokenService provisions artist tokens: the app-level token row, the
// issuer/distributor account pair, and the marketplace listing.
type TokenService struct {
	store       repository.Store
	vault       *keyvault.Vault
	coordinator *stellar.Coordinator
	network     string
}

// NewTokenService creates a TokenService.
func NewTokenService(store repository.Store, vault *keyvault.Vault, coordinator *stellar.Coordinator, network string) *TokenService {
	return &TokenService{
		store:       store,
		vault:       vault,
		coordinator: coordinator,
		network:     network,
	}
}

// ArtistTokenResult is the public view of a provisioned artist asset.
type ArtistTokenResult struct {
	ArtistID             uuid.UUID `json:"artistId"`
	TokenID              uuid.UUID `json:"tokenId"`
	AssetCode            string    `json:"assetCode"`
	IssuerPublicKey      string    `json:"issuerPublicKey"`
	DistributorPublicKey string    `json:"distributorPublicKey"`
	Network              string    `json:"network"`
}

// ProvisionArtistToken creates the token row and the Stellar asset record for
// an artist: asset code derivation, issuer/distributor keypair generation,
// secret encryption, persistence, and best-effort testnet funding of both
// accounts. Idempotent: if an asset record already exists it is returned
// as-is. Funding failure never fails provisioning; it only delays the later
// issuance step.
func (s *TokenService) ProvisionArtistToken(ctx context.Context, artistID uuid.UUID, artistName string) (*ArtistTokenResult, error) {
	if artistID == uuid.Nil {
		return nil, apperr.Validationf("artistId is required")
	}

	if existing, err := s.store.GetArtistAssetByArtistID(ctx, artistID); err == nil {
		return &ArtistTokenResult{
			ArtistID:             existing.ArtistID,
			TokenID:              existing.TokenID,
			AssetCode:            existing.AssetCode,
			IssuerPublicKey:      existing.IssuerPublicKey,
			DistributorPublicKey: existing.DistributorPublicKey,
			Network:              existing.Network,
		}, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	base := stellar.DeriveAssetCode(artistName)
	assetCode := stellar.EnsureUniqueAssetCode(ctx, s.store, base, s.network)

	issuer, distributor, err := stellar.ProvisionArtistAccounts()
	if err != nil {
		return nil, err
	}

	issuerSecret, err := s.vault.Encrypt(issuer.Seed())
	if err != nil {
		return nil, err
	}
	distributorSecret, err := s.vault.Encrypt(distributor.Seed())
	if err != nil {
		return nil, err
	}

	// Reuse an existing token row (provisioning may have been interrupted
	// after the token insert but before the asset insert).
	token, err := s.store.GetArtistTokenByArtistID(ctx, artistID)
	if isNotFound(err) {
		token = &models.ArtistToken{
			ID:          uuid.New(),
			ArtistID:    artistID,
			Symbol:      assetCode,
			DisplayName: artistName,
			CreatedAt:   time.Now(),
		}
		if err := s.store.CreateArtistToken(ctx, token); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	asset := &models.ArtistAsset{
		ID:                     uuid.New(),
		ArtistID:               artistID,
		TokenID:                token.ID,
		AssetCode:              assetCode,
		IssuerPublicKey:        issuer.Address(),
		DistributorPublicKey:   distributor.Address(),
		IssuerSecretEncrypted:  issuerSecret,
		DistribSecretEncrypted: distributorSecret,
		Network:                s.network,
	}
	asset.CreatedAt = time.Now()
	if err := s.store.CreateArtistAsset(ctx, asset); err != nil {
		return nil, err
	}

	// Best-effort concurrent funding of the new pair. Non-fatal: the
	// issuance pipeline re-checks and re-funds whatever is still missing.
	if s.network == "testnet" {
		for _, result := range s.coordinator.FundAccounts(ctx, issuer.Address(), distributor.Address()) {
			if !result.OK() {
				log.Printf("[provision] testnet funding failed for %s: %v", result.PublicKey, result.Err)
			}
		}
	}

	return &ArtistTokenResult{
		ArtistID:             artistID,
		TokenID:              token.ID,
		AssetCode:            assetCode,
		IssuerPublicKey:      issuer.Address(),
		DistributorPublicKey: distributor.Address(),
		Network:              s.network,
	}, nil
}

// TokenStatus reports what exists for an artist: token row, asset record,
// active listing.
type TokenStatus struct {
	Token      *models.ArtistToken `json:"token"`
	Asset      *ArtistTokenResult  `json:"asset"`
	HasListing bool                `json:"hasListing"`
}

// Status returns the provisioning state of an artist's token.
func (s *TokenService) Status(ctx context.Context, artistID uuid.UUID) (*TokenStatus, error) {
	status := &TokenStatus{}

	token, err := s.store.GetArtistTokenByArtistID(ctx, artistID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	status.Token = token

	asset, err := s.store.GetArtistAssetByArtistID(ctx, artistID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if asset != nil {
		status.Asset = &ArtistTokenResult{
			ArtistID:             asset.ArtistID,
			TokenID:              asset.TokenID,
			AssetCode:            asset.AssetCode,
			IssuerPublicKey:      asset.IssuerPublicKey,
			DistributorPublicKey: asset.DistributorPublicKey,
			Network:              asset.Network,
		}
	}

	if token != nil {
		if _, err := s.store.GetActiveListing(ctx, artistID, token.ID); err == nil {
			status.HasListing = true
		} else if !isNotFound(err) {
			return nil, err
		}
	}

	return status, nil
}

// CreateListing opens a marketplace listing for the artist's token. One
// active listing per (artist, token): an existing one is returned unchanged.
// Non-positive price or supply fall back to the defaults.
func (s *TokenService) CreateListing(ctx context.Context, artistID uuid.UUID, priceXLM float64, supply int64) (*models.Listing, error) {
	token, err := s.store.GetArtistTokenByArtistID(ctx, artistID)
	if err != nil {
		return nil, err
	}
	asset, err := s.store.GetArtistAssetByArtistID(ctx, artistID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.store.GetActiveListing(ctx, artistID, token.ID); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	if priceXLM <= 0 {
		priceXLM = DefaultListingPriceXLM
	}
	if supply <= 0 {
		supply = DefaultListingSupply
	}

	listing := &models.Listing{
		ID:              uuid.New(),
		ArtistID:        artistID,
		TokenID:         token.ID,
		AssetID:         asset.ID,
		PriceXLM:        priceXLM,
		TotalSupply:     supply,
		AvailableSupply: supply,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	if err := s.store.CreateListing(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func isNotFound(err error) bool {
	var notFound *apperr.NotFoundError
	return errors.As(err, &notFound)
}
