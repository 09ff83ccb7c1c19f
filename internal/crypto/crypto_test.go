package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSignerAddressAndRecover(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 8453)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.Address().Hex())
	assert.Equal(t, int64(8453), s.ChainID())

	sig, err := s.SignMessage([]byte("vaultagent:1700000000"))
	require.NoError(t, err)
	assert.Len(t, sig, 2+130)

	addr, err := RecoverAddress([]byte("vaultagent:1700000000"), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	other, err := RecoverAddress([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestSignerTransactor(t *testing.T) {
	s, err := NewSigner(testKey, 8453)
	require.NoError(t, err)
	opts, err := s.Transactor()
	require.NoError(t, err)
	assert.Equal(t, s.Address(), opts.From)
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	_, err := NewSigner("zz", 1)
	require.Error(t, err)
}

func TestHMACHeadersDeterministic(t *testing.T) {
	h := &HMACAuth{Key: "agent-key", Secret: "s3cret"}
	a := h.HeadersAt("GET", "/api/vaults", "", 1_700_000_000)
	b := h.HeadersAt("GET", "/api/vaults", "", 1_700_000_000)
	assert.Equal(t, a, b)
	assert.Equal(t, "agent-key", a[HeaderAPIKey])
	assert.Equal(t, "1700000000", a[HeaderTimestamp])

	assert.True(t, h.Verify("GET", "/api/vaults", "", "1700000000", a[HeaderSignature]))
	assert.False(t, h.Verify("POST", "/api/vaults", "", "1700000000", a[HeaderSignature]))

	c := h.HeadersAt("GET", "/api/vaults", "", 1_700_000_001)
	assert.NotEqual(t, a[HeaderSignature], c[HeaderSignature])
}

func TestHMACStringRedacts(t *testing.T) {
	h := &HMACAuth{Key: "abcdefgh", Secret: "topsecret"}
	assert.Equal(t, "HMACAuth{key=abcd****, secret=tops****}", h.String())
}

func TestKeyFileRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "agent.key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.Error(t, err)

	s, err := LoadSigner(KeyConfig{RawPrivateKey: "0x" + testKey}, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.Address().Hex())

	_, err = LoadKey(KeyConfig{})
	require.ErrorIs(t, err, ErrNoKey)
}

func TestWriteKeyFileBindsAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.key.json")
	addr, err := WriteKeyFile(path, testKey, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = WriteKeyFile(path, testKey, "hunter2")
	require.Error(t, err, "existing key file must not be overwritten")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", 1)
	_, err = DecryptKey([]byte(tampered), "hunter2")
	require.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKey, "")
	require.Error(t, err)
	_, err = EncryptKey("0x1234", "pw")
	require.Error(t, err)
	_, err = DecryptKey([]byte(`{"version":1}`), "pw")
	require.Error(t, err)
}
