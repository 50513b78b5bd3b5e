package nativeexec

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/specialistvlad/scriptloader/internal/locator"
)

// In signed bundles the last signatureSize bytes hold the token, prefixed by
// signatureMarker and padded with NUL bytes.
const (
	signatureSize   = 1280
	signatureMarker = "/* RCSSB */"
)

// splitSignature separates a bundle from its signature trailer. Bundles
// shorter than the trailer, or without the marker, are unsigned and the
// token is empty.
func splitSignature(content []byte) (bundle []byte, token string) {
	if len(content) < signatureSize {
		return content, ""
	}
	tail := content[len(content)-signatureSize:]
	if !bytes.HasPrefix(tail, []byte(signatureMarker)) {
		return content, ""
	}
	token = strings.TrimSpace(strings.ReplaceAll(string(tail[len(signatureMarker):]), "\x00", ""))
	return content[:len(content)-signatureSize], token
}

// verifier checks bundle tokens against a public key.
type verifier struct {
	key *rsa.PublicKey
}

func newVerifier(publicKeyPEM []byte) (*verifier, error) {
	if len(publicKeyPEM) == 0 {
		return &verifier{}, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &verifier{key: key}, nil
}

// check applies mode to a raw download or file and returns the bundle with
// the trailer removed.
func (v *verifier) check(mode locator.VerifyMode, content []byte) ([]byte, error) {
	bundle, token := splitSignature(content)
	switch {
	case mode == locator.VerifyStrict, mode == locator.VerifyLax && token != "":
		if err := v.verify(token, bundle); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

func (v *verifier) verify(token string, bundle []byte) error {
	if token == "" {
		return errors.New("no token for the bundle was found")
	}
	if v.key == nil {
		return errors.New("no public key is configured")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return fmt.Errorf("token verification was unsuccessful: %w", err)
	}

	want, ok := claims["hash"].(string)
	if !ok || want == "" {
		return errors.New("the token carries no hash claim")
	}
	sum := sha256.Sum256(bundle)
	if want != hex.EncodeToString(sum[:]) {
		return errors.New("the bundle hash is invalid")
	}
	return nil
}
