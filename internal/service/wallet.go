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

// WalletService provisions and inspects custodial user wallets.
type WalletService struct {
	store        repository.WalletStore
	vault        *keyvault.Vault
	funder       stellar.Funder
	gateway      stellar.Gateway
	network      string
	friendbotURL string
}

// NewWalletService creates a WalletService.
func NewWalletService(store repository.WalletStore, vault *keyvault.Vault, funder stellar.Funder, gateway stellar.Gateway, network, friendbotURL string) *WalletService {
	return &WalletService{
		store:        store,
		vault:        vault,
		funder:       funder,
		gateway:      gateway,
		network:      network,
		friendbotURL: friendbotURL,
	}
}

// EnsureWallet returns the user's wallet, creating one if none exists.
// Concurrent creation races are resolved through the store's unique
// constraint: the loser re-selects the winner's row. On testnet the new
// account is funded best-effort; a funding failure leaves isFunded false and
// never fails wallet creation.
func (s *WalletService) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, bool, error) {
	if userID == uuid.Nil {
		return nil, false, apperr.Validationf("userId is required")
	}

	if existing, err := s.store.GetWalletByUserID(ctx, userID); err == nil {
		return existing, false, nil
	} else if !isNotFound(err) {
		return nil, false, err
	}

	kp, err := stellar.GenerateKeypair()
	if err != nil {
		return nil, false, err
	}
	encryptedSeed, err := s.vault.Encrypt(kp.Seed())
	if err != nil {
		return nil, false, err
	}

	wallet := &models.Wallet{
		ID:                 uuid.New(),
		UserID:             userID,
		PublicKey:          kp.Address(),
		SecretKeyEncrypted: encryptedSeed,
		Network:            s.network,
		IsFunded:           false,
		CreatedAt:          time.Now(),
	}

	if err := s.store.CreateWallet(ctx, wallet); err != nil {
		if errors.Is(err, apperr.ErrWalletExists) {
			// Another request won the race; return its wallet.
			winner, selErr := s.store.GetWalletByUserID(ctx, userID)
			if selErr != nil {
				return nil, false, selErr
			}
			return winner, false, nil
		}
		return nil, false, err
	}

	if s.network == "testnet" {
		if err := s.funder.FundAccount(ctx, wallet.PublicKey); err != nil {
			log.Printf("[wallet] testnet funding failed for %s: %v", wallet.PublicKey, err)
		} else {
			wallet.IsFunded = true
			if err := s.store.SetWalletFunded(ctx, wallet.ID, true); err != nil {
				log.Printf("[wallet] funded flag update failed for %s: %v", wallet.ID, err)
			}
		}
	}

	return wallet, true, nil
}

// WalletStatus is the live view of a user's wallet.
type WalletStatus struct {
	PublicKey     string  `json:"publicKey"`
	Network       string  `json:"network"`
	IsFunded      bool    `json:"isFunded"`
	NativeBalance float64 `json:"nativeBalance"`
	FundingURL    string  `json:"fundingUrl,omitempty"`
}

// Status looks up the wallet and refreshes its cached funding state against
// the ledger. The cache refresh is idempotent and best-effort.
func (s *WalletService) Status(ctx context.Context, userID uuid.UUID) (*WalletStatus, error) {
	wallet, err := s.store.GetWalletByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &WalletStatus{
		PublicKey: wallet.PublicKey,
		Network:   wallet.Network,
		IsFunded:  wallet.IsFunded,
	}

	if s.gateway.AccountExists(ctx, wallet.PublicKey) {
		status.IsFunded = true
		if !wallet.IsFunded {
			if err := s.store.SetWalletFunded(ctx, wallet.ID, true); err != nil {
				log.Printf("[wallet] funded flag refresh failed for %s: %v", wallet.ID, err)
			}
		}
		balance, err := s.gateway.NativeBalance(ctx, wallet.PublicKey)
		if err != nil {
			log.Printf("[wallet] native balance lookup failed for %s: %v", wallet.PublicKey, err)
		} else {
			status.NativeBalance = balance
		}
	} else if s.network == "testnet" {
		status.FundingURL = stellar.FundingURL(s.friendbotURL, wallet.PublicKey)
	}

	return status, nil
}
