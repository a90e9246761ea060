package stellar

import (
	"context"
	"math/rand"
	"strings"

	"github.com/stellar/go/keypair"
)

const assetCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeLen is the Stellar alphanumeric-12 boundary we stay under; codes are
// kept to the alphanum-4/alphanum-12 friendly maximum of 6 used app-wide.
const maxCodeLen = 6

// GenerateKeypair creates a new random Stellar keypair.
func GenerateKeypair() (*keypair.Full, error) {
	return keypair.Random()
}

// ProvisionArtistAccounts generates the independent issuer and distributor
// keypairs for an artist token. Pure generation: no ledger or persistence
// interaction.
func ProvisionArtistAccounts() (issuer, distributor *keypair.Full, err error) {
	issuer, err = keypair.Random()
	if err != nil {
		return nil, nil, err
	}
	distributor, err = keypair.Random()
	if err != nil {
		return nil, nil, err
	}
	return issuer, distributor, nil
}

// DeriveAssetCode builds a candidate asset code from the artist display name:
// uppercase, alphanumerics only, at most 6 characters. Names shorter than 3
// usable characters are padded with random alphanumerics.
func DeriveAssetCode(artistName string) string {
	if artistName == "" {
		artistName = "ARTIST"
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(artistName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) >= 3 {
		if len(cleaned) > maxCodeLen {
			return cleaned[:maxCodeLen]
		}
		return cleaned
	}
	return cleaned + randomCode(maxCodeLen-len(cleaned))
}

// CodeChecker reports whether an asset code is already recorded for a network.
type CodeChecker interface {
	AssetCodeExists(ctx context.Context, assetCode, network string) (bool, error)
}

// EnsureUniqueAssetCode checks base against persisted asset records and, on
// collision, retries with a random 2-character suffix, up to 10 attempts. A
// still-colliding final candidate is accepted: uniqueness against our own
// records is best effort, and (code, issuer) is what identifies the asset on
// the network.
func EnsureUniqueAssetCode(ctx context.Context, checker CodeChecker, base, network string) string {
	code := base
	for attempt := 0; attempt < 10; attempt++ {
		exists, err := checker.AssetCodeExists(ctx, code, network)
		if err != nil {
			// Lookup failure: stop retrying rather than loop on a broken store.
			break
		}
		if !exists {
			return code
		}
		trimmed := base
		if len(trimmed) > maxCodeLen-2 {
			trimmed = trimmed[:maxCodeLen-2]
		}
		code = trimmed + randomCode(2)
	}
	return code
}

func randomCode(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = assetCodeChars[rand.Intn(len(assetCodeChars))]
	}
	return string(b)
}
