package crypto

import (
	"crypto/sha256"
	"encoding/base64"
)

// FingerprintSize is the length of every condition fingerprint.
const FingerprintSize = sha256.Size

// Fingerprint returns the SHA-256 digest of canonical fingerprint contents.
func Fingerprint(contents []byte) []byte {
	sum := sha256.Sum256(contents)
	return sum[:]
}

// EncodeFingerprint renders a fingerprint as unpadded base64url, the form
// used by ni:// URIs and logs.
func EncodeFingerprint(fp []byte) string {
	return base64.RawURLEncoding.EncodeToString(fp)
}
