package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrNoPrivateKey reports a sign attempt by an identity that holds no active
// private key.
var ErrNoPrivateKey = errors.New("no private key available")

// Signer signs canonical payload encodings with one identity's private key.
// It never signs a payload that already carries a signature field: the
// signature is carried alongside the payload and is not part of the data
// that gets canonicalized.
type Signer struct {
	priv *ecdsa.PrivateKey
}

// SignatureField is the wire field carrying the signature next to the payload.
const SignatureField = "signature"

// NewSigner builds a Signer from a PKCS#8 PEM private key.
func NewSigner(privPEM string) (*Signer, error) {
	priv, err := ParsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv}, nil
}

// Sign canonicalizes the payload, hashes it with SHA-256, and signs the
// digest. Returns the base64-encoded ASN.1 DER signature.
func (s *Signer) Sign(payload map[string]any) (string, error) {
	if s == nil || s.priv == nil {
		return "", ErrNoPrivateKey
	}
	if _, ok := payload[SignatureField]; ok {
		return "", fmt.Errorf("%w: payload already carries a signature", ErrEncoding)
	}

	canonical, err := Encode(payload)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(canonical)

	sig, err := ecdsa.SignASN1(rand.Reader, s.priv, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKeyPEM returns the signer's public key in the registry's exact
// lookup encoding.
func (s *Signer) PublicKeyPEM() (string, error) {
	if s == nil || s.priv == nil {
		return "", ErrNoPrivateKey
	}
	pair, err := encodePublicKeyPEM(&s.priv.PublicKey)
	if err != nil {
		return "", err
	}
	return pair, nil
}
