package signing

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedSignature reports a signature encoding that could not be
// decoded. A decodable signature that fails cryptographic verification is not
// an error; Verify reports that as (false, nil).
var ErrMalformedSignature = errors.New("malformed signature encoding")

// Verify recomputes the canonical encoding of payload and checks the base64
// ASN.1 signature against the PEM public key. Pure and side-effect free; it
// makes no trust decision beyond cryptographic validity.
//
// Result contract, relied on by the verification pipeline:
//   - (true, nil): signature is cryptographically valid
//   - (false, nil): well-formed inputs, signature does not match
//   - (false, err): malformed signature/key encoding or unencodable payload
func Verify(payload map[string]any, signatureB64, publicKeyPEM string) (bool, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false, err
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	canonical, err := Encode(payload)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256(canonical)

	return ecdsa.VerifyASN1(pub, digest[:], sig), nil
}
