package webhook

import "crypto/subtle"

// verifySecret compares the presented header value with the configured
// secret in constant time. An empty configured secret accepts any request.
func verifySecret(presented, secret string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
