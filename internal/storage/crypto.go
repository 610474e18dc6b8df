// Package storage - Field-level encryption for sensitive columns.
//
// The preimage and repayment private key columns are encrypted at rest.
// The cipher key and IV are derived once per open from the wallet mnemonic:
// BIP39 seed -> SHA-256 hash chain -> PBKDF2 (fixed cost), with the IV taken
// from a further hash of the salt. The derived key lives in process memory
// only and is never persisted.
package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"

	"github.com/photon-wallet/photon/pkg/helpers"
)

// KDF parameters. Fixed: changing them breaks decryption of existing rows.
const (
	kdfIterations = 2048
	kdfKeyLen     = 32
)

var (
	// ErrBadSeed is returned when the mnemonic fails BIP39 validation.
	ErrBadSeed = errors.New("invalid wallet seed phrase")

	// ErrCorruptRecord is returned when a sensitive field fails to decrypt
	// into well-formed content.
	ErrCorruptRecord = errors.New("corrupt record")
)

// fieldCipher encrypts and decrypts individual column values.
type fieldCipher struct {
	key []byte
	iv  []byte
}

// newFieldCipher derives the column cipher from the wallet mnemonic.
func newFieldCipher(mnemonic string) (*fieldCipher, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrBadSeed
	}

	seed := bip39.NewSeed(mnemonic, "")
	defer helpers.SecureClear(seed)

	chained := sha256.Sum256(seed)
	salt := sha256.Sum256(chained[:])

	key := pbkdf2.Key(chained[:], salt[:], kdfIterations, kdfKeyLen, sha256.New)

	ivHash := sha256.Sum256(salt[:])

	return &fieldCipher{
		key: key,
		iv:  ivHash[:aes.BlockSize],
	}, nil
}

// xor runs AES-256-CTR over data in place semantics (returns a new slice).
func (f *fieldCipher) xor(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(f.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	out := make([]byte, len(data))
	cipher.NewCTR(block, f.iv).XORKeyStream(out, data)
	return out, nil
}

// encrypt encrypts a plaintext column value and returns it hex-encoded.
func (f *fieldCipher) encrypt(plain string) (string, error) {
	ct, err := f.xor([]byte(plain))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

// decrypt reverses encrypt. The caller validates the plaintext shape.
func (f *fieldCipher) decrypt(stored string) (string, error) {
	ct, err := hex.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not hex", ErrCorruptRecord)
	}
	plain, err := f.xor(ct)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// decryptHexField decrypts a column that must contain a hex encoding of
// exactly byteLen bytes. Anything else is a corrupt record.
func (f *fieldCipher) decryptHexField(stored string, byteLen int) (string, error) {
	plain, err := f.decrypt(stored)
	if err != nil {
		return "", err
	}
	if !helpers.IsHexOfLen(plain, byteLen) {
		return "", fmt.Errorf("%w: decrypted field is not %d-byte hex", ErrCorruptRecord, byteLen)
	}
	return plain, nil
}

// destroy wipes the derived key material.
func (f *fieldCipher) destroy() {
	helpers.SecureClear(f.key)
	helpers.SecureClear(f.iv)
}
