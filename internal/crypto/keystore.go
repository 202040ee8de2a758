// Package crypto hashes orders and holds the swapper-side signing used by
// the encodeorder tool.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters for sealed key files.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	sealedKeyLen = 32
	keyFileVer   = 1
)

// keyFile is the on-disk form of a sealed signing key.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// SealKey encrypts the signer's key under passphrase with scrypt and
// AES-256-GCM. The address is stored in clear so key files can be told
// apart without the passphrase.
func SealKey(s *Signer, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto/keystore: passphrase must not be empty")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keystore: salt: %w", err)
	}
	gcm, err := keyCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keystore: nonce: %w", err)
	}

	kf := keyFile{
		Version:    keyFileVer,
		Address:    s.Address().Hex(),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(gcm.Seal(nil, nonce, ethcrypto.FromECDSA(s.privateKey), []byte(s.Address().Hex()))),
	}
	return json.MarshalIndent(kf, "", "  ")
}

// OpenKey decrypts a key file produced by SealKey.
func OpenKey(data []byte, passphrase string) (*Signer, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto/keystore: parse key file: %w", err)
	}
	if kf.Version != keyFileVer {
		return nil, fmt.Errorf("crypto/keystore: unsupported key file version %d", kf.Version)
	}

	salt, err := hex.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: salt: %w", err)
	}
	nonce, err := hex.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: ciphertext: %w", err)
	}

	gcm, err := keyCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("crypto/keystore: bad nonce length")
	}
	raw, err := gcm.Open(nil, nonce, ciphertext, []byte(kf.Address))
	if err != nil {
		return nil, errors.New("crypto/keystore: wrong passphrase or corrupted key file")
	}
	return NewSigner(hex.EncodeToString(raw))
}

// LoadSigner resolves a signer from a raw hex key, or failing that from a
// sealed key file.
func LoadSigner(rawKey, keyPath, passphrase string) (*Signer, error) {
	switch {
	case rawKey != "":
		return NewSigner(rawKey)
	case keyPath != "":
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto/keystore: read key file: %w", err)
		}
		return OpenKey(data, passphrase)
	default:
		return nil, errors.New("crypto/keystore: no signing key configured")
	}
}

func keyCipher(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, sealedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
