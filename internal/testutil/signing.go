package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SignatureSize and SignatureMarker describe the trailer appended to a
// signed bundle. They mirror the values the executor expects.
const (
	SignatureSize   = 1280
	SignatureMarker = "/* RCSSB */"
)

// KeyPair is an RSA key used to sign test bundles.
type KeyPair struct {
	Private   *rsa.PrivateKey
	PublicPEM []byte
}

// NewKeyPair generates a 2048 bit RSA key.
func NewKeyPair(t *testing.T) *KeyPair {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return &KeyPair{
		Private:   key,
		PublicPEM: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}),
	}
}

// Sign returns bundle followed by a signature trailer whose token carries
// the sha256 of bundle.
func (k *KeyPair) Sign(t *testing.T, bundle []byte) []byte {
	t.Helper()

	sum := sha256.Sum256(bundle)
	return k.SignWithHash(t, bundle, hex.EncodeToString(sum[:]))
}

// SignWithHash is Sign with an explicit hash claim, for tampering tests.
func (k *KeyPair) SignWithHash(t *testing.T, bundle []byte, hash string) []byte {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"hash": hash}).SignedString(k.Private)
	require.NoError(t, err)

	trailer := make([]byte, SignatureSize)
	n := copy(trailer, SignatureMarker+token)
	require.Equal(t, len(SignatureMarker)+len(token), n, "token does not fit the signature trailer")

	out := make([]byte, 0, len(bundle)+SignatureSize)
	out = append(out, bundle...)
	return append(out, trailer...)
}
