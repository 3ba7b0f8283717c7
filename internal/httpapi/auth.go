package httpapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayyanshiraz/inv/internal/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager signs and verifies the bearer tokens that carry the owner id.
// Every request's tenant comes from the token, never from the payload.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	identity IdentityProvider
}

// IdentityProvider resolves credentials to an actor. The default deployment
// is a fixed owner list from the environment; a user table can slot in later.
type IdentityProvider interface {
	Authenticate(username string, password string) (domain.Actor, error)
	DisplayProfile(ownerID string) (domain.OwnerProfile, bool)
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	OwnerID string `json:"owner_id"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, identity IdentityProvider) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		identity: identity,
	}
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	actor, err := a.identity.Authenticate(username, req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(actor, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		OwnerID:     actor.OwnerID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.OwnerID == "" {
		return domain.Actor{}, errors.New("invalid token claims")
	}
	return domain.Actor{OwnerID: claims.OwnerID, Username: sub}, nil
}

func (a *AuthManager) sign(actor domain.Actor, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "inv",
		},
		OwnerID: actor.OwnerID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// StaticIdentityProvider holds a fixed set of owner accounts, typically one,
// seeded from the environment at startup. Passwords are bcrypt-hashed on Add.
type StaticIdentityProvider struct {
	mu       sync.RWMutex
	accounts map[string]staticAccount
}

type staticAccount struct {
	ownerID      string
	passwordHash string
	profile      domain.OwnerProfile
}

func NewStaticIdentityProvider() *StaticIdentityProvider {
	return &StaticIdentityProvider{accounts: make(map[string]staticAccount)}
}

func (p *StaticIdentityProvider) Add(username string, password string, profile domain.OwnerProfile) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" || profile.OwnerID == "" {
		return errors.New("username, password, and owner id are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.accounts[username] = staticAccount{ownerID: profile.OwnerID, passwordHash: string(hash), profile: profile}
	p.mu.Unlock()
	return nil
}

func (p *StaticIdentityProvider) DisplayProfile(ownerID string) (domain.OwnerProfile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, account := range p.accounts {
		if account.ownerID == ownerID {
			return account.profile, true
		}
	}
	return domain.OwnerProfile{}, false
}

func (p *StaticIdentityProvider) Authenticate(username string, password string) (domain.Actor, error) {
	p.mu.RLock()
	account, ok := p.accounts[strings.ToLower(strings.TrimSpace(username))]
	p.mu.RUnlock()
	if !ok {
		return domain.Actor{}, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(account.passwordHash), []byte(password)) != nil {
		return domain.Actor{}, errInvalidCredentials
	}
	return domain.Actor{OwnerID: account.ownerID, Username: strings.ToLower(strings.TrimSpace(username))}, nil
}
