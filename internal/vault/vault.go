// Package vault implements CredentialVault: symmetric encryption of secret
// fields at rest. Tokens are standard compact-serialized JWEs
// (go-jose, "dir" key management, A256GCM content encryption) so the
// "opaque ciphertext" the rest of the system handles is inspectable by any
// JOSE-aware tool without ever exposing plaintext.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/wisbric/fleetd/internal/errs"
)

const keySize = 32 // A256GCM requires a 256-bit key

// Vault encrypts and decrypts secret field material.
type Vault struct {
	encrypter jose.Encrypter
	key       []byte
}

// New builds a Vault from a base64-encoded ENCRYPTION_KEY. The raw key
// material (which may be shorter or longer than 32 bytes, or absent) is
// expanded to exactly 32 bytes via HKDF-SHA256 before use, so operators can
// supply a passphrase of any length without breaking A256GCM's fixed key
// size requirement.
func New(encryptionKeyB64 string, logger *slog.Logger) (*Vault, error) {
	var raw []byte
	if encryptionKeyB64 == "" {
		raw = make([]byte, keySize)
		if _, err := rand.Read(raw); err != nil {
			return nil, errs.Wrap(errs.VaultError, "generating ephemeral key", err)
		}
		logger.Warn("ENCRYPTION_KEY not set; using an ephemeral in-memory key. " +
			"Tokens encrypted this run will not decrypt after restart.")
	} else {
		decoded, err := base64.StdEncoding.DecodeString(encryptionKeyB64)
		if err != nil {
			return nil, errs.Wrap(errs.VaultError, "decoding ENCRYPTION_KEY", err)
		}
		raw = decoded
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, raw, nil, []byte("fleetd-credential-vault"))
	if _, err := kdf.Read(key); err != nil {
		return nil, errs.Wrap(errs.VaultError, "deriving vault key", err)
	}

	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.DIRECT, Key: key}, nil)
	if err != nil {
		return nil, errs.Wrap(errs.VaultError, "constructing encrypter", err)
	}

	return &Vault{encrypter: enc, key: key}, nil
}

// Encrypt seals plaintext into an opaque compact-serialized token.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	obj, err := v.encrypter.Encrypt(plaintext)
	if err != nil {
		return "", errs.Wrap(errs.VaultError, "encrypting", err)
	}
	token, err := obj.CompactSerialize()
	if err != nil {
		return "", errs.Wrap(errs.VaultError, "serializing token", err)
	}
	return token, nil
}

// Decrypt opens a token produced by Encrypt.
func (v *Vault) Decrypt(token string) ([]byte, error) {
	obj, err := jose.ParseEncrypted(token,
		[]jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return nil, errs.Wrap(errs.VaultError, "corrupt token", err)
	}
	plaintext, err := obj.Decrypt(v.key)
	if err != nil {
		return nil, errs.Wrap(errs.VaultError, "key mismatch or tampered ciphertext", err)
	}
	return plaintext, nil
}

// EncryptString is a convenience wrapper over Encrypt for UTF-8 secrets.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// DecryptString is a convenience wrapper over Decrypt for UTF-8 secrets.
func (v *Vault) DecryptString(token string) (string, error) {
	b, err := v.Decrypt(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
