package stellar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"fanbeat-backend/internal/apperr"
)

// Funder credits a newly created account with the minimum reserve so it
// becomes usable. Test-network only.
type Funder interface {
	FundAccount(ctx context.Context, publicKey string) error
}

// FriendbotFunder funds accounts through the Stellar testnet friendbot.
type FriendbotFunder struct {
	network      string
	friendbotURL string
	httpClient   *http.Client
}

// NewFriendbotFunder creates a funder for the given network and friendbot
// base URL. A nil httpClient falls back to a client with a sane timeout.
func NewFriendbotFunder(networkName, friendbotURL string, httpClient *http.Client) *FriendbotFunder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FriendbotFunder{
		network:      networkName,
		friendbotURL: friendbotURL,
		httpClient:   httpClient,
	}
}

// FundAccount requests friendbot funding for publicKey. On any network other
// than testnet it fails with apperr.ErrUnsupportedNetwork: a silent no-op
// here would mask a configuration error.
func (f *FriendbotFunder) FundAccount(ctx context.Context, publicKey string) error {
	if f.network != "testnet" {
		return apperr.ErrUnsupportedNetwork
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, FundingURL(f.friendbotURL, publicKey), nil)
	if err != nil {
		return fmt.Errorf("build friendbot request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("friendbot request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("friendbot returned status %d for %s", resp.StatusCode, publicKey)
	}
	return nil
}

// FundingURL returns the manual friendbot funding URL for an account.
func FundingURL(friendbotURL, publicKey string) string {
	return friendbotURL + "?addr=" + publicKey
}

// FundResult is the outcome of funding a single account.
type FundResult struct {
	PublicKey string
	Err       error
}

// OK reports whether funding succeeded.
func (r FundResult) OK() bool { return r.Err == nil }

// Coordinator fans funding requests out over multiple accounts.
type Coordinator struct {
	funder Funder
}

// NewCoordinator wraps a Funder.
func NewCoordinator(funder Funder) *Coordinator {
	return &Coordinator{funder: funder}
}

// FundAccounts funds each account concurrently and returns one result per
// input, in input order. Partial success is visible per account so callers
// can retry only what failed.
func (c *Coordinator) FundAccounts(ctx context.Context, publicKeys ...string) []FundResult {
	results := make([]FundResult, len(publicKeys))

	var wg sync.WaitGroup
	for i, publicKey := range publicKeys {
		wg.Add(1)
		go func(i int, publicKey string) {
			defer wg.Done()
			results[i] = FundResult{
				PublicKey: publicKey,
				Err:       c.funder.FundAccount(ctx, publicKey),
			}
		}(i, publicKey)
	}
	wg.Wait()

	return results
}
