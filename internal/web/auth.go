package web

import (
	"net/http"
	"strings"
)

// HeaderAuthenticator trusts an identity header set by the gateway in
// front of this service, which has already validated the session.
type HeaderAuthenticator struct {
	Header string
}

var _ Authenticator = HeaderAuthenticator{}

func (a HeaderAuthenticator) Authenticate(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(a.Header))
}
