// ABOUTME: Key-pair JWT credential signed with an RSA private key
// ABOUTME: Tokens are cached and re-minted before expiry; concurrent mints are coalesced

package auth

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLifetime is how long a minted token is valid. The service caps it at one hour.
	DefaultLifetime = 59 * time.Minute
	// DefaultRenewal is the token age after which a new one is minted.
	DefaultRenewal = 54 * time.Minute
)

// KeyPairOptions configures a KeyPair credential.
type KeyPairOptions struct {
	Account string
	User    string
	// PrivateKeyPEM is the key itself; PrivateKeyPath is read when it is empty.
	PrivateKeyPEM  []byte
	PrivateKeyPath string
	Passphrase     string
	Lifetime       time.Duration
	Renewal        time.Duration
	Logger         *slog.Logger
}

// KeyPair mints RS256 JWTs identifying ACCOUNT.USER by public key fingerprint.
type KeyPair struct {
	qualifiedUser string
	fingerprint   string
	key           *rsa.PrivateKey
	lifetime      time.Duration
	renewal       time.Duration
	now           func() time.Time
	logger        *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewKeyPair parses the private key and prepares the credential.
func NewKeyPair(opts KeyPairOptions) (*KeyPair, error) {
	if opts.Account == "" || opts.User == "" {
		return nil, errors.New("key-pair auth requires account and user")
	}

	pemBytes := opts.PrivateKeyPEM
	if len(pemBytes) == 0 {
		if opts.PrivateKeyPath == "" {
			return nil, fmt.Errorf("key-pair auth: %w", ErrNoCredentials)
		}
		b, err := os.ReadFile(opts.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		pemBytes = b
	}

	key, err := ParsePrivateKey(pemBytes, opts.Passphrase)
	if err != nil {
		return nil, err
	}

	fp, err := PublicKeyFingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	renewal := opts.Renewal
	if renewal <= 0 || renewal >= lifetime {
		renewal = min(DefaultRenewal, lifetime*9/10)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	kp := &KeyPair{
		qualifiedUser: NormalizeAccount(opts.Account) + "." + strings.ToUpper(opts.User),
		fingerprint:   fp,
		key:           key,
		lifetime:      lifetime,
		renewal:       renewal,
		now:           time.Now,
		logger:        logger.With("component", "keypair_auth"),
	}

	if sshPub, err := ssh.NewPublicKey(&key.PublicKey); err == nil {
		kp.logger.Debug("loaded private key", "user", kp.qualifiedUser, "ssh_fingerprint", ssh.FingerprintSHA256(sshPub))
	}
	return kp, nil
}

// TokenType identifies the token as a key-pair JWT.
func (k *KeyPair) TokenType() string {
	return TokenTypeKeyPairJWT
}

// Issuer returns the iss claim: ACCOUNT.USER.SHA256:<fingerprint>.
func (k *KeyPair) Issuer() string {
	return k.qualifiedUser + "." + k.fingerprint
}

// Subject returns the sub claim: ACCOUNT.USER.
func (k *KeyPair) Subject() string {
	return k.qualifiedUser
}

// Token returns a cached token, minting a new one once the cached token has
// reached its renewal age.
func (k *KeyPair) Token(ctx context.Context) (string, error) {
	if tok, ok := k.cached(); ok {
		return tok, nil
	}

	ch := k.group.DoChan("mint", func() (any, error) {
		if tok, ok := k.cached(); ok {
			return tok, nil
		}
		return k.mint()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (k *KeyPair) cached() (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.token == "" || k.now().Sub(k.issuedAt) >= k.renewal {
		return "", false
	}
	return k.token, true
}

func (k *KeyPair) mint() (string, error) {
	now := k.now()
	claims := jwt.RegisteredClaims{
		Issuer:    k.Issuer(),
		Subject:   k.Subject(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(k.lifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	k.mu.Lock()
	k.token = signed
	k.issuedAt = now
	k.mu.Unlock()

	k.logger.Debug("minted token", "subject", k.Subject(), "expires_at", now.Add(k.lifetime))
	return signed, nil
}

// NormalizeAccount upper-cases an account identifier and drops any region or
// cloud suffix, so "xy12345.us-east-1" becomes "XY12345". Global identifiers
// keep only the part before the first hyphen, so "xy12345-abc.global" becomes
// "XY12345".
func NormalizeAccount(account string) string {
	account = strings.TrimSpace(account)
	account = strings.TrimSuffix(account, ".snowflakecomputing.com")
	sep := "."
	if strings.Contains(account, ".global") {
		sep = "-"
	}
	if i := strings.Index(account, sep); i > 0 {
		account = account[:i]
	}
	return strings.ToUpper(account)
}

// ParsePrivateKey decodes a PEM RSA private key, decrypting it when a
// passphrase is given.
func ParsePrivateKey(pemBytes []byte, passphrase string) (*rsa.PrivateKey, error) {
	raw, err := ssh.ParseRawPrivateKey(pemBytes)

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if passphrase == "" {
			return nil, errors.New("private key is encrypted: set a passphrase")
		}
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", raw)
	}
	return key, nil
}

// PublicKeyFingerprint returns "SHA256:" plus the base64 SHA-256 digest of the
// DER-encoded public key.
func PublicKeyFingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}
