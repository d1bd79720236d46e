package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/bhoriuchi/graphql-ws-bridge/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "jwt-signing-secret"
	testSessionSecret = "session-secret"
	testAdminSecret   = "admin-secret"
	testCookie        = "next-auth.session-token"
)

func newTestAuthenticator(adminSecret string) (*Authenticator, *token.Service, *token.SessionDecrypter) {
	tokens := token.NewService(testJWTSecret)
	sessions := token.NewSessionDecrypter(testSessionSecret)

	return New(Config{
		Issuer:         tokens,
		Sessions:       sessions,
		AdminSecret:    adminSecret,
		SessionCookies: []string{"__Secure-next-auth.session-token", testCookie},
		UserRole:       "user",
		TokenTTL:       "1h",
	}), tokens, sessions
}

func sealSession(t *testing.T, sessions *token.SessionDecrypter, claims map[string]interface{}) string {
	t.Helper()
	cookie, err := sessions.Seal(claims, token.EncA256GCM)
	require.NoError(t, err)
	return cookie
}

func TestResolveFromValidSession(t *testing.T) {
	a, tokens, sessions := newTestAuthenticator(testAdminSecret)

	r := httptest.NewRequest(http.MethodGet, "/v1/graphql", nil)
	r.AddCookie(&http.Cookie{
		Name: testCookie,
		Value: sealSession(t, sessions, map[string]interface{}{
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
			// embedded claims must never reach the minted token
			token.ClaimsNamespace: map[string]interface{}{
				"x-hasura-allowed-roles": []string{"admin"},
				"x-hasura-default-role":  "admin",
			},
		}),
	})

	cred, err := a.Resolve(r, PolicyResolveFromSession)
	require.NoError(t, err)
	assert.Equal(t, KindToken, cred.Kind)
	assert.Equal(t, "user-42", cred.UserID)
	assert.Equal(t, []string{"user", "anonymous", "me"}, cred.Roles)

	claims, err := tokens.Verify(cred.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "user", claims.DefaultRole)
	assert.Equal(t, []string{"user", "anonymous", "me"}, claims.AllowedRoles)

	assert.Equal(t, "Bearer "+cred.Value, cred.Header().Get("Authorization"))
	assert.Empty(t, cred.Header().Get(HeaderAdminSecret))
}

func TestResolveWithoutSessionFallsBackToSharedSecret(t *testing.T) {
	a, _, _ := newTestAuthenticator(testAdminSecret)

	cred, err := a.Resolve(httptest.NewRequest(http.MethodGet, "/v1/graphql", nil), PolicyResolveFromSession)
	require.NoError(t, err)
	assert.Equal(t, KindSharedSecret, cred.Kind)
	assert.Equal(t, testAdminSecret, cred.Value)
	assert.Equal(t, testAdminSecret, cred.Header().Get(HeaderAdminSecret))
	assert.Empty(t, cred.Header().Get("Authorization"))
}

func TestResolveWithoutSessionOrSecret(t *testing.T) {
	a, _, _ := newTestAuthenticator("")

	_, err := a.Resolve(httptest.NewRequest(http.MethodGet, "/v1/graphql", nil), PolicyResolveFromSession)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUnauthenticated))

	code, _ := errs.CloseCode(err)
	assert.Equal(t, errs.CloseUnauthorized, code)
}

func TestResolveInvalidSessionFallsBack(t *testing.T) {
	a, _, _ := newTestAuthenticator(testAdminSecret)
	other := token.NewSessionDecrypter("some-other-secret")

	r := httptest.NewRequest(http.MethodGet, "/v1/graphql", nil)
	r.AddCookie(&http.Cookie{Name: testCookie, Value: sealSession(t, other, map[string]interface{}{"sub": "user-42"})})

	cred, err := a.Resolve(r, PolicyResolveFromSession)
	require.NoError(t, err)
	assert.Equal(t, KindSharedSecret, cred.Kind)
}

func TestResolveChunkedSessionCookie(t *testing.T) {
	a, _, sessions := newTestAuthenticator(testAdminSecret)

	value := sealSession(t, sessions, map[string]interface{}{"sub": "user-9"})
	half := len(value) / 2

	r := httptest.NewRequest(http.MethodGet, "/v1/graphql", nil)
	// out of order on purpose
	r.AddCookie(&http.Cookie{Name: testCookie + ".1", Value: value[half:]})
	r.AddCookie(&http.Cookie{Name: testCookie + ".0", Value: value[:half]})

	cred, err := a.Resolve(r, PolicyResolveFromSession)
	require.NoError(t, err)
	assert.Equal(t, KindToken, cred.Kind)
	assert.Equal(t, "user-9", cred.UserID)
}

func TestAlwaysElevatedIgnoresSession(t *testing.T) {
	a, _, sessions := newTestAuthenticator(testAdminSecret)

	r := httptest.NewRequest(http.MethodPost, "/v1/graphql", strings.NewReader("{}"))
	r.AddCookie(&http.Cookie{Name: testCookie, Value: sealSession(t, sessions, map[string]interface{}{"sub": "user-42"})})

	cred, err := a.Resolve(r, PolicyAlwaysElevated)
	require.NoError(t, err)
	assert.Equal(t, KindSharedSecret, cred.Kind)

	a, _, _ = newTestAuthenticator("")
	_, err = a.Resolve(r, PolicyAlwaysElevated)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestCredentialContext(t *testing.T) {
	cred := Credential{Kind: KindToken, Value: "signed", UserID: "user-42", Roles: []string{"user", RoleAnonymous, RoleMe}}

	assert.Equal(t, Context{Kind: KindToken, UserID: "user-42", Roles: []string{"user", "anonymous", "me"}}, cred.Context())
	assert.Equal(t, Context{Kind: KindSharedSecret}, Credential{Kind: KindSharedSecret, Value: "secret"}.Context())
}
