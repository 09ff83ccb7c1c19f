// Package crypto loads the agent's signing key and authenticates backend
// requests.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultIterations = 480_000
	minIterations     = 100_000
	saltLen           = 16
	aesKeyLen         = 32
	keyFileVersion    = 2
)

// ErrNoKey is returned by LoadKey when no key source is configured.
var ErrNoKey = errors.New("crypto: no agent key configured (set wallet.private_key or wallet.encrypted_key_path)")

// keyFile is the on-disk format of an encrypted agent key. The address is
// bound to the ciphertext as additional data, so a file whose address was
// edited fails to open.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries the information LoadKey needs to resolve the agent key.
// The wallet section of the config populates it.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded private key (with or without 0x prefix).
	// If non-empty, LoadKey returns it directly.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword is the password used to decrypt the file at EncryptedKeyPath.
	KeyPassword string
}

// EncryptKey seals the hex-encoded agent key under password with
// PBKDF2-HMAC-SHA256 and AES-256-GCM. It returns the key file contents.
func EncryptKey(privateKeyHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	key, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	addr := ethcrypto.PubkeyToAddress(key.PublicKey)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	aead, err := newAEAD(password, salt, defaultIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, ethcrypto.FromECDSA(key), addr.Bytes())
	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    addr.Hex(),
		Iterations: defaultIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey and returns the
// hex-encoded private key (without 0x prefix).
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parsing key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}
	if kf.Iterations < minIterations {
		return "", fmt.Errorf("crypto: key file iterations %d below %d", kf.Iterations, minIterations)
	}
	if !common.IsHexAddress(kf.Address) {
		return "", fmt.Errorf("crypto: key file address %q is invalid", kf.Address)
	}
	addr := common.HexToAddress(kf.Address)

	var salt, nonce, sealed []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", kf.Salt, &salt},
		{"nonce", kf.Nonce, &nonce},
		{"ciphertext", kf.Ciphertext, &sealed},
	} {
		b, err := base64.StdEncoding.DecodeString(f.in)
		if err != nil {
			return "", fmt.Errorf("crypto: decoding %s: %w", f.name, err)
		}
		*f.out = b
	}

	aead, err := newAEAD(password, salt, kf.Iterations)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("crypto: nonce length %d", len(nonce))
	}
	plain, err := aead.Open(nil, nonce, sealed, addr.Bytes())
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	key, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypted key: %w", err)
	}
	if got := ethcrypto.PubkeyToAddress(key.PublicKey); got != addr {
		return "", fmt.Errorf("crypto: key file is for %s but key derives %s", addr.Hex(), got.Hex())
	}
	return hex.EncodeToString(plain), nil
}

// WriteKeyFile encrypts privateKeyHex to path with owner-only permissions and
// returns the wallet address it holds. An existing file is never overwritten.
func WriteKeyFile(path, privateKeyHex, password string) (common.Address, error) {
	data, err := EncryptKey(privateKeyHex, password)
	if err != nil {
		return common.Address{}, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: create key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return common.Address{}, fmt.Errorf("crypto: write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return common.Address{}, fmt.Errorf("crypto: close key file: %w", err)
	}

	var kf keyFile
	_ = json.Unmarshal(data, &kf)
	return common.HexToAddress(kf.Address), nil
}

// LoadKey resolves the agent key. A raw key wins over the encrypted file.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		key, err := parseKey(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(ethcrypto.FromECDSA(key)), nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", ErrNoKey
}

func parseKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return key, nil
}

func newAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
