package auth

import "strings"

// Scheme is the bearer scheme crater agents send (spec §6): "Authorization:
// CraterToken <token>", distinct from the standard "Bearer" scheme so a
// crater token is never accidentally forwarded to an unrelated service
// that also reads Authorization headers.
const Scheme = "CraterToken"

// ExtractToken pulls the raw token out of an Authorization header value,
// returning ok=false if the header is missing or uses the wrong scheme.
func ExtractToken(header string) (token string, ok bool) {
	prefix := Scheme + " "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
