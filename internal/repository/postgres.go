package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fanbeat-backend/internal/apperr"
	"fanbeat-backend/internal/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

// RunMigrations executes a migration SQL script.
func (s *PostgresStore) RunMigrations(ctx context.Context, migrationSQL string) error {
	if _, err := s.db.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("run migration: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- AssetStore ---

func (s *PostgresStore) CreateArtistToken(ctx context.Context, token *models.ArtistToken) error {
	sql := `
        INSERT INTO artist_tokens (id, artist_id, symbol, display_name, created_at)
        VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, sql,
		token.ID, token.ArtistID, token.Symbol, token.DisplayName, token.CreatedAt)
	if err != nil {
		return &apperr.PersistenceError{Op: "create artist token", Err: err}
	}
	return nil
}

func (s *PostgresStore) GetArtistTokenByArtistID(ctx context.Context, artistID uuid.UUID) (*models.ArtistToken, error) {
	sql := `
        SELECT id, artist_id, symbol, display_name, created_at
        FROM artist_tokens
        WHERE artist_id = $1`

	token := &models.ArtistToken{}
	err := s.db.QueryRow(ctx, sql, artistID).Scan(
		&token.ID, &token.ArtistID, &token.Symbol, &token.DisplayName, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("artist token")
		}
		return nil, &apperr.PersistenceError{Op: "get artist token", Err: err}
	}
	return token, nil
}

func (s *PostgresStore) CreateArtistAsset(ctx context.Context, asset *models.ArtistAsset) error {
	sql := `
        INSERT INTO artist_stellar_assets
            (id, artist_id, token_id, asset_code, issuer_public_key, distributor_public_key,
             issuer_secret_encrypted, distributor_secret_encrypted, network, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.Exec(ctx, sql,
		asset.ID, asset.ArtistID, asset.TokenID, asset.AssetCode,
		asset.IssuerPublicKey, asset.DistributorPublicKey,
		asset.IssuerSecretEncrypted, asset.DistribSecretEncrypted,
		asset.Network, asset.CreatedAt)
	if err != nil {
		return &apperr.PersistenceError{Op: "create artist asset", Err: err}
	}
	return nil
}

func (s *PostgresStore) scanAsset(row pgx.Row, op string) (*models.ArtistAsset, error) {
	asset := &models.ArtistAsset{}
	err := row.Scan(
		&asset.ID, &asset.ArtistID, &asset.TokenID, &asset.AssetCode,
		&asset.IssuerPublicKey, &asset.DistributorPublicKey,
		&asset.IssuerSecretEncrypted, &asset.DistribSecretEncrypted,
		&asset.Network, &asset.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("stellar asset")
		}
		return nil, &apperr.PersistenceError{Op: op, Err: err}
	}
	return asset, nil
}

const assetColumns = `id, artist_id, token_id, asset_code, issuer_public_key,
        distributor_public_key, issuer_secret_encrypted, distributor_secret_encrypted,
        network, created_at`

func (s *PostgresStore) GetArtistAssetByArtistID(ctx context.Context, artistID uuid.UUID) (*models.ArtistAsset, error) {
	sql := `SELECT ` + assetColumns + ` FROM artist_stellar_assets WHERE artist_id = $1`
	return s.scanAsset(s.db.QueryRow(ctx, sql, artistID), "get artist asset")
}

func (s *PostgresStore) GetArtistAssetByID(ctx context.Context, id uuid.UUID) (*models.ArtistAsset, error) {
	sql := `SELECT ` + assetColumns + ` FROM artist_stellar_assets WHERE id = $1`
	return s.scanAsset(s.db.QueryRow(ctx, sql, id), "get asset by id")
}

func (s *PostgresStore) AssetCodeExists(ctx context.Context, assetCode, network string) (bool, error) {
	sql := `SELECT EXISTS(SELECT 1 FROM artist_stellar_assets WHERE asset_code = $1 AND network = $2)`

	var exists bool
	if err := s.db.QueryRow(ctx, sql, assetCode, network).Scan(&exists); err != nil {
		return false, &apperr.PersistenceError{Op: "check asset code", Err: err}
	}
	return exists, nil
}

// --- ListingStore ---

func (s *PostgresStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	sql := `
        INSERT INTO token_listings
            (id, artist_id, token_id, stellar_asset_id, price_xlm, total_supply,
             available_supply, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(ctx, sql,
		listing.ID, listing.ArtistID, listing.TokenID, listing.AssetID,
		listing.PriceXLM, listing.TotalSupply, listing.AvailableSupply,
		listing.IsActive, listing.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &apperr.PersistenceError{Op: "create listing", Err: errors.New("an active listing already exists")}
		}
		return &apperr.PersistenceError{Op: "create listing", Err: err}
	}
	return nil
}

const listingColumns = `id, artist_id, token_id, stellar_asset_id, price_xlm,
        total_supply, available_supply, is_active, created_at`

func (s *PostgresStore) scanListing(row pgx.Row, op string) (*models.Listing, error) {
	listing := &models.Listing{}
	err := row.Scan(
		&listing.ID, &listing.ArtistID, &listing.TokenID, &listing.AssetID,
		&listing.PriceXLM, &listing.TotalSupply, &listing.AvailableSupply,
		&listing.IsActive, &listing.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("listing")
		}
		return nil, &apperr.PersistenceError{Op: op, Err: err}
	}
	return listing, nil
}

func (s *PostgresStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	sql := `SELECT ` + listingColumns + ` FROM token_listings WHERE id = $1`
	return s.scanListing(s.db.QueryRow(ctx, sql, id), "get listing")
}

func (s *PostgresStore) GetActiveListing(ctx context.Context, artistID, tokenID uuid.UUID) (*models.Listing, error) {
	sql := `SELECT ` + listingColumns + ` FROM token_listings
        WHERE artist_id = $1 AND token_id = $2 AND is_active`
	return s.scanListing(s.db.QueryRow(ctx, sql, artistID, tokenID), "get active listing")
}

func (s *PostgresStore) DecrementListingSupply(ctx context.Context, id uuid.UUID, quantity int64) error {
	// Conditional decrement: the WHERE guard makes two racing purchases
	// serialize at the database, so supply can never go negative.
	sql := `
        UPDATE token_listings
        SET available_supply = available_supply - $2
        WHERE id = $1 AND available_supply >= $2`

	tag, err := s.db.Exec(ctx, sql, id, quantity)
	if err != nil {
		return &apperr.PersistenceError{Op: "decrement supply", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &apperr.PersistenceError{Op: "decrement supply", Err: errors.New("insufficient available supply")}
	}
	return nil
}

// --- WalletStore ---

func (s *PostgresStore) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	sql := `
        INSERT INTO stellar_wallets
            (id, user_id, public_key, secret_key_encrypted, network, is_funded, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, sql,
		wallet.ID, wallet.UserID, wallet.PublicKey, wallet.SecretKeyEncrypted,
		wallet.Network, wallet.IsFunded, wallet.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrWalletExists
		}
		return &apperr.PersistenceError{Op: "create wallet", Err: err}
	}
	return nil
}

func (s *PostgresStore) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	sql := `
        SELECT id, user_id, public_key, secret_key_encrypted, network, is_funded, created_at
        FROM stellar_wallets
        WHERE user_id = $1`

	wallet := &models.Wallet{}
	err := s.db.QueryRow(ctx, sql, userID).Scan(
		&wallet.ID, &wallet.UserID, &wallet.PublicKey, &wallet.SecretKeyEncrypted,
		&wallet.Network, &wallet.IsFunded, &wallet.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("wallet")
		}
		return nil, &apperr.PersistenceError{Op: "get wallet", Err: err}
	}
	return wallet, nil
}

func (s *PostgresStore) SetWalletFunded(ctx context.Context, id uuid.UUID, funded bool) error {
	sql := `UPDATE stellar_wallets SET is_funded = $2 WHERE id = $1`
	if _, err := s.db.Exec(ctx, sql, id, funded); err != nil {
		return &apperr.PersistenceError{Op: "set wallet funded", Err: err}
	}
	return nil
}

// --- BalanceStore ---

func (s *PostgresStore) GetFanBalance(ctx context.Context, fanID, tokenID uuid.UUID) (*models.FanTokenBalance, error) {
	sql := `
        SELECT id, fan_id, token_id, stellar_asset_id, balance, total_purchased,
               average_purchase_price_xlm, has_trustline, updated_at
        FROM fan_token_balances
        WHERE fan_id = $1 AND token_id = $2`

	balance := &models.FanTokenBalance{}
	err := s.db.QueryRow(ctx, sql, fanID, tokenID).Scan(
		&balance.ID, &balance.FanID, &balance.TokenID, &balance.AssetID,
		&balance.Balance, &balance.TotalPurchased, &balance.AvgPurchaseXLM,
		&balance.HasTrustline, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("fan token balance")
		}
		return nil, &apperr.PersistenceError{Op: "get fan balance", Err: err}
	}
	return balance, nil
}

func (s *PostgresStore) CreateFanBalance(ctx context.Context, balance *models.FanTokenBalance) error {
	sql := `
        INSERT INTO fan_token_balances
            (id, fan_id, token_id, stellar_asset_id, balance, total_purchased,
             average_purchase_price_xlm, has_trustline, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(ctx, sql,
		balance.ID, balance.FanID, balance.TokenID, balance.AssetID,
		balance.Balance, balance.TotalPurchased, balance.AvgPurchaseXLM,
		balance.HasTrustline, balance.UpdatedAt)
	if err != nil {
		return &apperr.PersistenceError{Op: "create fan balance", Err: err}
	}
	return nil
}

func (s *PostgresStore) UpdateFanBalance(ctx context.Context, balance *models.FanTokenBalance) error {
	sql := `
        UPDATE fan_token_balances
        SET balance = $2, total_purchased = $3, average_purchase_price_xlm = $4,
            has_trustline = $5, updated_at = $6
        WHERE id = $1`

	_, err := s.db.Exec(ctx, sql,
		balance.ID, balance.Balance, balance.TotalPurchased,
		balance.AvgPurchaseXLM, balance.HasTrustline, balance.UpdatedAt)
	if err != nil {
		return &apperr.PersistenceError{Op: "update fan balance", Err: err}
	}
	return nil
}

// --- PurchaseStore ---

func (s *PostgresStore) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	sql := `
        INSERT INTO token_purchases
            (id, listing_id, buyer_id, quantity, price_per_token_xlm, total_price_xlm,
             stellar_transaction_hash, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(ctx, sql,
		purchase.ID, purchase.ListingID, purchase.BuyerID, purchase.Quantity,
		purchase.PricePerToken, purchase.TotalPrice, purchase.TransactionHash,
		purchase.Status, purchase.CreatedAt)
	if err != nil {
		return &apperr.PersistenceError{Op: "create purchase", Err: err}
	}
	return nil
}
