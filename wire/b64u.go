package wire

import (
	"encoding/base64"
	"regexp"
)

var b64uAlphabet = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// DecodeStrictB64U decodes an unpadded base64url string, rejecting any
// padding character, any character outside [A-Za-z0-9_-], and any length
// that is congruent to 1 mod 4 (which can never correspond to a valid
// byte string).
func DecodeStrictB64U(s string) ([]byte, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return nil, reject(ReasonInvalidRequest, "padding not allowed")
		}
	}
	if !b64uAlphabet.MatchString(s) {
		return nil, reject(ReasonInvalidRequest, "invalid base64url alphabet")
	}
	if len(s)%4 == 1 {
		return nil, reject(ReasonInvalidRequest, "invalid base64url length")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, reject(ReasonInvalidRequest, "malformed base64url: %v", err)
	}
	return b, nil
}

// EncodeStrictB64U encodes b as unpadded base64url.
func EncodeStrictB64U(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
