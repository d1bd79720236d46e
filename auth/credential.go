package auth

import "net/http"

// Upstream credential headers
const (
	HeaderAdminSecret   = "x-hasura-admin-secret"
	HeaderAuthorization = "Authorization"
)

// CredentialKind identifies how a connection authenticates upstream
type CredentialKind string

const (
	KindToken        CredentialKind = "token"
	KindSharedSecret CredentialKind = "sharedSecret"
)

// Credential is the upstream credential resolved for one request or
// connection. It is immutable once resolved.
type Credential struct {
	Kind  CredentialKind
	Value string

	// set for KindToken
	UserID string
	Roles  []string
}

// Context describes who a connection acts as, for logging
type Context struct {
	Kind   CredentialKind
	UserID string
	Roles  []string
}

// Context returns the auth context carried by the credential
func (c Credential) Context() Context {
	return Context{
		Kind:   c.Kind,
		UserID: c.UserID,
		Roles:  c.Roles,
	}
}

// HeaderName returns the upstream header the credential travels in
func (c Credential) HeaderName() string {
	if c.Kind == KindToken {
		return HeaderAuthorization
	}
	return HeaderAdminSecret
}

// HeaderValue returns the value of the credential header
func (c Credential) HeaderValue() string {
	if c.Kind == KindToken {
		return "Bearer " + c.Value
	}
	return c.Value
}

// Header returns the credential as a header set for upstream requests
func (c Credential) Header() http.Header {
	h := http.Header{}
	h.Set(c.HeaderName(), c.HeaderValue())
	return h
}
