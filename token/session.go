package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/chacha20poly1305"
)

// Content encryption algorithms accepted in external session cookies
const (
	EncA256GCM = "A256GCM"
	EncXC20P   = "XC20P"
)

var ErrInvalidSession = errors.New("invalid session")

// ExternalSession is the decrypted content of an external session cookie
type ExternalSession struct {
	Subject   string
	ExpiresAt time.Time
	Claims    map[string]interface{}
}

// SessionDecrypter opens compact JWE session cookies ("dir" key management)
// issued by the external session framework. The content key is the SHA-256
// digest of the shared secret, which both sides derive independently.
type SessionDecrypter struct {
	key [32]byte
	now func() time.Time
}

// SessionOption configures a SessionDecrypter
type SessionOption func(d *SessionDecrypter)

// WithSessionClock overrides the time source used to check session expiry
func WithSessionClock(now func() time.Time) SessionOption {
	return func(d *SessionDecrypter) {
		d.now = now
	}
}

// NewSessionDecrypter creates a decrypter for secret
func NewSessionDecrypter(secret string, opts ...SessionOption) *SessionDecrypter {
	d := &SessionDecrypter{
		key: sha256.Sum256([]byte(secret)),
		now: time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Decrypt opens a session cookie value and returns its claims
func (d *SessionDecrypter) Decrypt(cookieValue string) (*ExternalSession, error) {
	obj, err := jose.ParseEncrypted(cookieValue,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		// go-jose does not implement XChaCha20-Poly1305
		if enc, ok := compactEncryption(cookieValue); ok && enc == EncXC20P {
			return d.openXC20P(cookieValue)
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, err)
	}

	plaintext, err := obj.Decrypt(d.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", ErrInvalidSession)
	}

	return d.sessionFromClaims(plaintext)
}

func (d *SessionDecrypter) sessionFromClaims(plaintext []byte) (*ExternalSession, error) {
	claims := map[string]interface{}{}
	if err := json.Unmarshal(plaintext, &claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %s", ErrInvalidSession, err)
	}

	session := &ExternalSession{Claims: claims}
	for _, key := range []string{"sub", "id", "userId"} {
		if v, ok := claims[key].(string); ok && v != "" {
			session.Subject = v
			break
		}
	}

	if session.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidSession)
	}

	if exp, ok := claims["exp"].(float64); ok {
		session.ExpiresAt = time.Unix(int64(exp), 0)
		if !d.now().Before(session.ExpiresAt) {
			return nil, fmt.Errorf("%w: %s", ErrExpiredToken, "session expired")
		}
	}

	return session, nil
}

// Seal encrypts claims into a session cookie value using enc. It produces
// the format Decrypt reads.
func (d *SessionDecrypter) Seal(claims map[string]interface{}, enc string) (string, error) {
	plaintext, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	switch enc {
	case EncA256GCM:
		encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{
			Algorithm: jose.DIRECT,
			Key:       d.key[:],
		}, nil)
		if err != nil {
			return "", err
		}

		obj, err := encrypter.Encrypt(plaintext)
		if err != nil {
			return "", err
		}
		return obj.CompactSerialize()

	case EncXC20P:
		return d.sealXC20P(plaintext)
	}

	return "", fmt.Errorf("unsupported content encryption %q", enc)
}

type compactHeader struct {
	Alg string `json:"alg"`
	Enc string `json:"enc"`
}

// compactEncryption reads the "enc" header of a compact JWE
func compactEncryption(value string) (string, bool) {
	protected, _, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}

	raw, err := base64.RawURLEncoding.DecodeString(protected)
	if err != nil {
		return "", false
	}

	header := compactHeader{}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", false
	}

	return header.Enc, true
}

// openXC20P decrypts a compact JWE using "dir" and XChaCha20-Poly1305. The
// protected header segment is the additional authenticated data.
func (d *SessionDecrypter) openXC20P(value string) (*ExternalSession, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: expected 5 segments, got %d", ErrInvalidSession, len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %s", ErrInvalidSession, err)
	}

	header := compactHeader{}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %s", ErrInvalidSession, err)
	}

	if header.Alg != string(jose.DIRECT) {
		return nil, fmt.Errorf("%w: unsupported key management %q", ErrInvalidSession, header.Alg)
	}

	if parts[1] != "" {
		return nil, fmt.Errorf("%w: unexpected encrypted key", ErrInvalidSession)
	}

	aead, err := chacha20poly1305.NewX(d.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, err)
	}

	segments := make([][]byte, 3)
	for i, part := range parts[2:] {
		if segments[i], err = base64.RawURLEncoding.DecodeString(part); err != nil {
			return nil, fmt.Errorf("%w: segment %d: %s", ErrInvalidSession, i+2, err)
		}
	}
	nonce, ciphertext, tag := segments[0], segments[1], segments[2]

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrInvalidSession, len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), []byte(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", ErrInvalidSession)
	}

	return d.sessionFromClaims(plaintext)
}

func (d *SessionDecrypter) sealXC20P(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(d.key[:])
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(compactHeader{Alg: string(jose.DIRECT), Enc: EncXC20P})
	if err != nil {
		return "", err
	}
	header := base64.RawURLEncoding.EncodeToString(raw)

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("rand read: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, []byte(header))
	split := len(sealed) - aead.Overhead()

	return strings.Join([]string{
		header,
		"",
		base64.RawURLEncoding.EncodeToString(nonce),
		base64.RawURLEncoding.EncodeToString(sealed[:split]),
		base64.RawURLEncoding.EncodeToString(sealed[split:]),
	}, "."), nil
}
