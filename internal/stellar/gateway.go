// Package stellar wraps the Stellar Horizon API behind a small gateway
// interface, and provides account provisioning and testnet funding helpers.
package stellar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"

	"fanbeat-backend/internal/apperr"
)

// Gateway is the thin ledger abstraction the services depend on. The tests
// substitute an in-memory implementation, mirroring the repository layer.
type Gateway interface {
	// AccountExists reports whether the account exists (is funded) on the
	// ledger. Returns false on any lookup failure: an absent account is not
	// distinguishable from a transient error at this level.
	AccountExists(ctx context.Context, accountID string) bool

	// HasTrustline reports whether accountID holds a trustline for the
	// (assetCode, issuer) pair. An absent account has no trustlines.
	HasTrustline(ctx context.Context, accountID, assetCode, issuer string) (bool, error)

	// AssetBalance returns the account's balance of the given asset, or 0
	// when no matching trustline exists.
	AssetBalance(ctx context.Context, accountID, assetCode, issuer string) (float64, error)

	// NativeBalance returns the account's XLM balance.
	NativeBalance(ctx context.Context, accountID string) (float64, error)

	// Submit builds a transaction from ops sourced at sourceAccountID, signs
	// it with signer and submits it, returning the transaction hash. Fails
	// with *apperr.SubmissionError on rejection and apperr.ErrAccountNotFound
	// when the source account is unfunded.
	Submit(ctx context.Context, sourceAccountID string, signer *keypair.Full, timeout time.Duration, ops ...txnbuild.Operation) (string, error)
}

// Passphrase returns the Stellar network passphrase for a configured network
// name ("testnet" or "mainnet").
func Passphrase(networkName string) string {
	if networkName == "mainnet" {
		return network.PublicNetworkPassphrase
	}
	return network.TestNetworkPassphrase
}

// HorizonGateway implements Gateway against a Horizon server.
type HorizonGateway struct {
	client     *horizonclient.Client
	passphrase string
}

// NewHorizonGateway creates a gateway for the given Horizon URL and network
// passphrase.
func NewHorizonGateway(horizonURL, networkPassphrase string) *HorizonGateway {
	return &HorizonGateway{
		client:     &horizonclient.Client{HorizonURL: horizonURL},
		passphrase: networkPassphrase,
	}
}

func (g *HorizonGateway) loadAccount(accountID string) (*hProtocol.Account, error) {
	account, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	return &account, nil
}

func (g *HorizonGateway) AccountExists(ctx context.Context, accountID string) bool {
	_, err := g.loadAccount(accountID)
	return err == nil
}

func (g *HorizonGateway) HasTrustline(ctx context.Context, accountID, assetCode, issuer string) (bool, error) {
	account, err := g.loadAccount(accountID)
	if err != nil {
		if errorsIsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, balance := range account.Balances {
		if balance.Code == assetCode && balance.Issuer == issuer {
			return true, nil
		}
	}
	return false, nil
}

func (g *HorizonGateway) AssetBalance(ctx context.Context, accountID, assetCode, issuer string) (float64, error) {
	account, err := g.loadAccount(accountID)
	if err != nil {
		if errorsIsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	raw := account.GetCreditBalance(assetCode, issuer)
	if raw == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return amount, nil
}

func (g *HorizonGateway) NativeBalance(ctx context.Context, accountID string) (float64, error) {
	account, err := g.loadAccount(accountID)
	if err != nil {
		if errorsIsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	raw, err := account.GetNativeBalance()
	if err != nil {
		return 0, fmt.Errorf("native balance: %w", err)
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return amount, nil
}

func (g *HorizonGateway) Submit(ctx context.Context, sourceAccountID string, signer *keypair.Full, timeout time.Duration, ops ...txnbuild.Operation) (string, error) {
	sourceAccount, err := g.loadAccount(sourceAccountID)
	if err != nil {
		return "", err
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        sourceAccount,
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(timeout.Seconds())),
		},
	})
	if err != nil {
		return "", &apperr.SubmissionError{Reason: "build transaction", Err: err}
	}

	tx, err = tx.Sign(g.passphrase, signer)
	if err != nil {
		return "", &apperr.SubmissionError{Reason: "sign transaction", Err: err}
	}

	resp, err := g.client.SubmitTransaction(tx)
	if err != nil {
		return "", &apperr.SubmissionError{Reason: submissionReason(err), Err: err}
	}
	return resp.Hash, nil
}

// submissionReason extracts Horizon's transaction result codes for diagnosis.
func submissionReason(err error) string {
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return err.Error()
	}
	codes, codesErr := hErr.ResultCodes()
	if codesErr != nil || codes == nil {
		return hErr.Problem.Title
	}
	reason := codes.TransactionCode
	if len(codes.OperationCodes) > 0 {
		reason += " [" + strings.Join(codes.OperationCodes, ", ") + "]"
	}
	return reason
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrAccountNotFound)
}
