package dataapi

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Mask derives the wire form of a secret as the token endpoint requires:
// SHA-256 over the secret concatenated with the lower-cased identifier,
// base64-encoded. The account password is masked against the account
// identity and the client secret against the client id; raw secrets are
// never sent. Any deviation in hashing, casing, or concatenation order
// makes the server reject the handshake without explanation.
func Mask(secret, identifier string) string {
	sum := sha256.Sum256([]byte(secret + strings.ToLower(identifier)))

	return base64.StdEncoding.EncodeToString(sum[:])
}
