package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtistToken is the app-level token record for an artist.
type ArtistToken struct {
	ID          uuid.UUID `json:"id"`
	ArtistID    uuid.UUID `json:"artistId"`
	Symbol      string    `json:"symbol"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ArtistAsset holds the on-ledger identity of an artist token: the asset code
// plus the issuer/distributor account pair and their encrypted signing keys.
// Created once per (artist, network) and never rotated.
type ArtistAsset struct {
	ID                     uuid.UUID `json:"id"`
	ArtistID               uuid.UUID `json:"artistId"`
	TokenID                uuid.UUID `json:"tokenId"`
	AssetCode              string    `json:"assetCode"`
	IssuerPublicKey        string    `json:"issuerPublicKey"`
	DistributorPublicKey   string    `json:"distributorPublicKey"`
	IssuerSecretEncrypted  string    `json:"-"` // never expose in JSON
	DistribSecretEncrypted string    `json:"-"`
	Network                string    `json:"network"`
	CreatedAt              time.Time `json:"createdAt"`
}

// Listing is a marketplace offer of an artist token.
type Listing struct {
	ID              uuid.UUID `json:"id"`
	ArtistID        uuid.UUID `json:"artistId"`
	TokenID         uuid.UUID `json:"tokenId"`
	AssetID         uuid.UUID `json:"stellarAssetId"`
	PriceXLM        float64   `json:"priceXlm"`
	TotalSupply     int64     `json:"totalSupply"`
	AvailableSupply int64     `json:"availableSupply"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Wallet is a custodial Stellar wallet for an end user. IsFunded is a
// best-effort cache of the ledger funding state, not a source of truth.
type Wallet struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"userId"`
	PublicKey          string    `json:"publicKey"`
	SecretKeyEncrypted string    `json:"-"`
	Network            string    `json:"network"`
	IsFunded           bool      `json:"isFunded"`
	CreatedAt          time.Time `json:"createdAt"`
}

// FanTokenBalance mirrors a fan's on-ledger trustline balance for local
// bookkeeping. It may drift from the ledger if a transfer succeeds on-chain
// but the local update fails; the ledger stays authoritative.
type FanTokenBalance struct {
	ID             uuid.UUID `json:"id"`
	FanID          uuid.UUID `json:"fanId"`
	TokenID        uuid.UUID `json:"tokenId"`
	AssetID        uuid.UUID `json:"stellarAssetId"`
	Balance        int64     `json:"balance"`
	TotalPurchased int64     `json:"totalPurchased"`
	AvgPurchaseXLM float64   `json:"averagePurchasePriceXlm"`
	HasTrustline   bool      `json:"hasTrustline"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Purchase records a completed marketplace purchase. TransactionHash is the
// ledger hash of the token transfer; once set, the purchase is committed even
// if later bookkeeping failed.
type Purchase struct {
	ID              uuid.UUID `json:"id"`
	ListingID       uuid.UUID `json:"listingId"`
	BuyerID         uuid.UUID `json:"buyerId"`
	Quantity        int64     `json:"quantity"`
	PricePerToken   float64   `json:"pricePerTokenXlm"`
	TotalPrice      float64   `json:"totalPriceXlm"`
	TransactionHash string    `json:"transactionHash"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}
