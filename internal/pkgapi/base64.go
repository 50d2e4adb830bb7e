package pkgapi

import "encoding/base64"

// fromBase64URL decodes URL-safe base64, accepting both padded and
// unpadded input.
func fromBase64URL(s string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
