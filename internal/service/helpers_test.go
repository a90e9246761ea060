package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"

	"fanbeat-backend/internal/keyvault"
	"fanbeat-backend/internal/models"
	"fanbeat-backend/internal/repository"
)

// stubGateway is an in-memory ledger double. Submitted ChangeTrust and
// Payment operations mutate its state the way Horizon would.
type stubGateway struct {
	mu          sync.Mutex
	existing    map[string]bool
	trustlines  map[string]bool
	balances    map[string]float64
	native      map[string]float64
	submitErr   error
	submissions []submission
	hashSeq     int
}

type submission struct {
	source string
	signer string
	ops    []txnbuild.Operation
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		existing:   make(map[string]bool),
		trustlines: make(map[string]bool),
		balances:   make(map[string]float64),
		native:     make(map[string]float64),
	}
}

func assetKey(accountID, code, issuer string) string {
	return accountID + "|" + code + "|" + issuer
}

func (g *stubGateway) AccountExists(ctx context.Context, accountID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.existing[accountID]
}

func (g *stubGateway) HasTrustline(ctx context.Context, accountID, assetCode, issuer string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trustlines[assetKey(accountID, assetCode, issuer)], nil
}

func (g *stubGateway) AssetBalance(ctx context.Context, accountID, assetCode, issuer string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[assetKey(accountID, assetCode, issuer)], nil
}

func (g *stubGateway) NativeBalance(ctx context.Context, accountID string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.native[accountID], nil
}

func (g *stubGateway) Submit(ctx context.Context, sourceAccountID string, signer *keypair.Full, timeout time.Duration, ops ...txnbuild.Operation) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.submitErr != nil {
		return "", g.submitErr
	}

	g.submissions = append(g.submissions, submission{
		source: sourceAccountID,
		signer: signer.Address(),
		ops:    ops,
	})

	for _, op := range ops {
		switch o := op.(type) {
		case *txnbuild.ChangeTrust:
			g.trustlines[assetKey(sourceAccountID, o.Line.GetCode(), o.Line.GetIssuer())] = true
		case *txnbuild.Payment:
			amount, _ := strconv.ParseFloat(o.Amount, 64)
			key := assetKey(o.Destination, o.Asset.GetCode(), o.Asset.GetIssuer())
			g.balances[key] += amount
			g.trustlines[key] = true
			g.balances[assetKey(sourceAccountID, o.Asset.GetCode(), o.Asset.GetIssuer())] -= amount
		}
	}

	g.hashSeq++
	return fmt.Sprintf("txhash-%04d", g.hashSeq), nil
}

func (g *stubGateway) submissionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submissions)
}

// stubFunder marks accounts as existing on the stub gateway when funded.
type stubFunder struct {
	mu      sync.Mutex
	gw      *stubGateway
	failOn  map[string]bool
	failAll bool
	calls   []string
}

func newStubFunder(gw *stubGateway) *stubFunder {
	return &stubFunder{gw: gw, failOn: make(map[string]bool)}
}

func (f *stubFunder) FundAccount(ctx context.Context, publicKey string) error {
	f.mu.Lock()
	f.calls = append(f.calls, publicKey)
	fail := f.failAll || f.failOn[publicKey]
	f.mu.Unlock()

	if fail {
		return errors.New("friendbot unavailable")
	}
	f.gw.mu.Lock()
	f.gw.existing[publicKey] = true
	f.gw.mu.Unlock()
	return nil
}

func (f *stubFunder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestVault(t *testing.T) *keyvault.Vault {
	t.Helper()
	vault, err := keyvault.New("test-passphrase")
	require.NoError(t, err)
	return vault
}

// seedArtistAsset persists a fully provisioned artist token + asset record
// backed by real keypairs, and returns the asset as stored.
func seedArtistAsset(t *testing.T, store *repository.InMemoryStore, vault *keyvault.Vault) (*models.ArtistAsset, *keypair.Full, *keypair.Full) {
	t.Helper()

	issuer, err := keypair.Random()
	require.NoError(t, err)
	distributor, err := keypair.Random()
	require.NoError(t, err)

	issuerSecret, err := vault.Encrypt(issuer.Seed())
	require.NoError(t, err)
	distributorSecret, err := vault.Encrypt(distributor.Seed())
	require.NoError(t, err)

	artistID := uuid.New()
	token := &models.ArtistToken{
		ID:          uuid.New(),
		ArtistID:    artistID,
		Symbol:      "DJNOVA",
		DisplayName: "DJ Nova",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.CreateArtistToken(context.Background(), token))

	asset := &models.ArtistAsset{
		ID:                     uuid.New(),
		ArtistID:               artistID,
		TokenID:                token.ID,
		AssetCode:              "DJNOVA",
		IssuerPublicKey:        issuer.Address(),
		DistributorPublicKey:   distributor.Address(),
		IssuerSecretEncrypted:  issuerSecret,
		DistribSecretEncrypted: distributorSecret,
		Network:                "testnet",
		CreatedAt:              time.Now(),
	}
	require.NoError(t, store.CreateArtistAsset(context.Background(), asset))

	return asset, issuer, distributor
}

// seedWallet persists a custodial wallet for a fresh user.
func seedWallet(t *testing.T, store *repository.InMemoryStore, vault *keyvault.Vault) (*models.Wallet, *keypair.Full) {
	t.Helper()

	kp, err := keypair.Random()
	require.NoError(t, err)
	encrypted, err := vault.Encrypt(kp.Seed())
	require.NoError(t, err)

	wallet := &models.Wallet{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		PublicKey:          kp.Address(),
		SecretKeyEncrypted: encrypted,
		Network:            "testnet",
		CreatedAt:          time.Now(),
	}
	require.NoError(t, store.CreateWallet(context.Background(), wallet))
	return wallet, kp
}

func stepByName(steps []StepResult, name string) (StepResult, bool) {
	for _, step := range steps {
		if step.Step == name {
			return step, true
		}
	}
	return StepResult{}, false
}
