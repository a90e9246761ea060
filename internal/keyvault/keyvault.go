// Package keyvault encrypts and decrypts custodial Stellar secret keys.
//
// Secrets are encrypted with AES-256-CBC under a key derived from a
// configured passphrase via scrypt with a fixed salt, and serialized as
// "iv:ciphertext" in hex. A fresh IV is generated per call, so encrypting the
// same plaintext twice yields different ciphertexts. Losing the passphrase is
// unrecoverable key loss.
package keyvault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"fanbeat-backend/internal/apperr"
)

// scrypt parameters matching Node's crypto.scryptSync defaults, which the
// stored ciphertexts were produced with. Changing any of these breaks
// decryption of existing records.
const (
	kdfSalt = "salt"
	kdfN    = 16384
	kdfR    = 8
	kdfP    = 1
	keyLen  = 32
)

// Vault performs symmetric encryption of secret keys for storage.
type Vault struct {
	passphrase string
}

// New creates a Vault. The passphrase must be non-empty.
func New(passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault passphrase must not be empty")
	}
	return &Vault{passphrase: passphrase}, nil
}

// deriveKey recomputes the AES key from the passphrase. Deliberately not
// cached: encryption is a rare, non-hot-path operation.
func (v *Vault) deriveKey() ([]byte, error) {
	key, err := scrypt.Key([]byte(v.passphrase), []byte(kdfSalt), kdfN, kdfR, kdfP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt key derivation: %w", err)
	}
	return key, nil
}

// Encrypt encrypts a secret and returns it as "iv:ciphertext" hex.
func (v *Vault) Encrypt(secret string) (string, error) {
	key, err := v.deriveKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	plaintext := pkcs7Pad([]byte(secret), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It returns an *apperr.DecryptionError if the
// input is malformed or was encrypted under a different passphrase.
func (v *Vault) Decrypt(encrypted string) (string, error) {
	ivHex, cipherHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", &apperr.DecryptionError{Err: errors.New("malformed payload: missing iv separator")}
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", &apperr.DecryptionError{Err: errors.New("malformed iv")}
	}

	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", &apperr.DecryptionError{Err: errors.New("malformed ciphertext")}
	}

	key, err := v.deriveKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		// A wrong passphrase almost always surfaces as invalid padding.
		return "", &apperr.DecryptionError{Err: err}
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
