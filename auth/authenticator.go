// Package auth resolves the credential the proxy presents to the upstream
// GraphQL engine.
//
// There are two call sites with deliberately different policies:
//
//   - PolicyAlwaysElevated (HTTP queries and mutations): the privileged shared
//     secret is always used. The engine applies row level authorization from
//     the request body, not from transport credentials.
//   - PolicyResolveFromSession (realtime connections): an end user with a
//     valid external session gets a freshly minted scoped token. The shared
//     secret is only a fallback for anonymous or service access.
package auth

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/token"
)

// Policy selects how a credential is resolved
type Policy int

const (
	PolicyResolveFromSession Policy = iota
	PolicyAlwaysElevated
)

func (p Policy) String() string {
	switch p {
	case PolicyResolveFromSession:
		return "resolve-from-session"
	case PolicyAlwaysElevated:
		return "always-elevated"
	}
	return "unknown"
}

// Role granted alongside the user role on every scoped token
const (
	RoleAnonymous = "anonymous"
	RoleMe        = "me"
)

// Issuer mints scoped tokens
type Issuer interface {
	Issue(subject string, claims token.AuthorizationClaims, ttl string) (string, error)
}

// SessionOpener decrypts external session cookies
type SessionOpener interface {
	Decrypt(cookieValue string) (*token.ExternalSession, error)
}

// Config configures an Authenticator
type Config struct {
	Issuer         Issuer
	Sessions       SessionOpener
	AdminSecret    string
	SessionCookies []string
	UserRole       string
	TokenTTL       string
	Logger         *logger.LogWrapper
}

// Authenticator resolves upstream credentials
type Authenticator struct {
	config Config
	log    *logger.LogWrapper
}

// New creates an authenticator
func New(config Config) *Authenticator {
	if config.UserRole == "" {
		config.UserRole = "user"
	}
	if config.TokenTTL == "" {
		config.TokenTTL = "1h"
	}

	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Authenticator{
		config: config,
		log:    l.WithField("component", "authenticator"),
	}
}

// Resolve resolves the credential for r under policy
func (a *Authenticator) Resolve(r *http.Request, policy Policy) (Credential, error) {
	switch policy {
	case PolicyAlwaysElevated:
		return a.Elevated()
	case PolicyResolveFromSession:
		return a.fromSession(r)
	}
	return Credential{}, errs.Newf(errs.ErrConfig, "resolve credential", "unknown policy %d", policy)
}

// fromSession mints a scoped token when the request carries a valid external
// session and otherwise falls back to the shared secret
func (a *Authenticator) fromSession(r *http.Request) (Credential, error) {
	if a.config.Sessions != nil {
		if cookie, ok := a.sessionCookie(r); ok {
			session, err := a.config.Sessions.Decrypt(cookie)
			if err == nil {
				return a.scopedToken(session.Subject)
			}
			a.log.WithError(err).Debugf("ignoring undecryptable session cookie")
		}
	}

	cred, err := a.Elevated()
	if errors.Is(err, errs.ErrConfig) {
		return Credential{}, errs.New(errs.ErrUnauthenticated, "resolve credential", err)
	}
	return cred, err
}

// scopedToken mints a token with a fixed claim set. Claims embedded in the
// session cookie are never copied so a client cannot elevate its roles.
func (a *Authenticator) scopedToken(subject string) (Credential, error) {
	roles := []string{a.config.UserRole, RoleAnonymous, RoleMe}
	signed, err := a.config.Issuer.Issue(subject, token.AuthorizationClaims{
		AllowedRoles: roles,
		DefaultRole:  a.config.UserRole,
		SubjectID:    subject,
	}, a.config.TokenTTL)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Kind:   KindToken,
		Value:  signed,
		UserID: subject,
		Roles:  roles,
	}, nil
}

// Elevated returns the privileged shared secret credential
func (a *Authenticator) Elevated() (Credential, error) {
	if a.config.AdminSecret == "" {
		return Credential{}, errs.Newf(errs.ErrConfig, "resolve credential", "admin secret is not configured")
	}

	return Credential{
		Kind:  KindSharedSecret,
		Value: a.config.AdminSecret,
	}, nil
}

// sessionCookie finds the first configured session cookie, reassembling
// chunked cookies (<name>.0, <name>.1, ...)
func (a *Authenticator) sessionCookie(r *http.Request) (string, bool) {
	for _, name := range a.config.SessionCookies {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value, true
		}

		chunks := map[int]string{}
		for _, c := range r.Cookies() {
			if !strings.HasPrefix(c.Name, name+".") {
				continue
			}
			n, err := strconv.Atoi(strings.TrimPrefix(c.Name, name+"."))
			if err != nil {
				continue
			}
			chunks[n] = c.Value
		}

		if len(chunks) == 0 {
			continue
		}

		indexes := make([]int, 0, len(chunks))
		for n := range chunks {
			indexes = append(indexes, n)
		}
		sort.Ints(indexes)

		var b strings.Builder
		for _, n := range indexes {
			b.WriteString(chunks[n])
		}
		return b.String(), true
	}

	return "", false
}
