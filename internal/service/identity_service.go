package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/repository"
	"golang.org/x/crypto/argon2"
)

var (
	ErrEmailTaken      = errors.New("email already taken")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrInvalidCreds    = errors.New("invalid email or password")
	ErrUnauthenticated = errors.New("sign in required")
)

// IdentityService resolves verified token claims to local user rows and
// doubles as the embedded development identity provider. Production
// deployments point the verifier at an external issuer sharing the same
// claim shape; the rest of the system only ever sees resolved users.
type IdentityService struct {
	userRepo  repository.UserRepository
	blockRepo repository.BlockRepository
	jwtSecret []byte
}

func NewIdentityService(userRepo repository.UserRepository, blockRepo repository.BlockRepository, jwtSecret string) *IdentityService {
	return &IdentityService{
		userRepo:  userRepo,
		blockRepo: blockRepo,
		jwtSecret: []byte(jwtSecret),
	}
}

type RegisterInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	existing, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	existing, err = s.userRepo.GetByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	id := uuid.New()
	email := input.Email
	user := &domain.User{
		ID:           id,
		Subject:      "local:" + id.String(),
		Email:        &email,
		Username:     input.Username,
		DisplayName:  input.DisplayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

func (s *IdentityService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCreds
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCreds
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

// VerifyToken checks the signature and expiry of a bearer token and
// returns the identity its claims assert. Any failure is
// ErrUnauthenticated; callers never learn why a token was rejected.
func (s *IdentityService) VerifyToken(tokenStr string) (*domain.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthenticated
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrUnauthenticated
	}

	ident := &domain.Identity{Subject: sub}
	if v, ok := claims["username"].(string); ok {
		ident.Username = v
	}
	if v, ok := claims["display_name"].(string); ok {
		ident.DisplayName = v
	}
	if v, ok := claims["email"].(string); ok && v != "" {
		ident.Email = &v
	}
	if v, ok := claims["avatar_url"].(string); ok && v != "" {
		ident.AvatarURL = &v
	}
	return ident, nil
}

// Resolve upserts the user row for a verified identity. Called on every
// authenticated request, so name and avatar changes at the issuer
// propagate on the user's next contact.
func (s *IdentityService) Resolve(ctx context.Context, ident *domain.Identity) (*domain.User, error) {
	if ident == nil || ident.Subject == "" {
		return nil, ErrUnauthenticated
	}

	now := time.Now()
	user := &domain.User{
		ID:          uuid.New(),
		Subject:     ident.Subject,
		Username:    ident.Username,
		DisplayName: ident.DisplayName,
		Email:       ident.Email,
		AvatarURL:   ident.AvatarURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if user.Username == "" {
		user.Username = ident.Subject
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	if err := s.userRepo.UpsertBySubject(ctx, user); err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	return user, nil
}

func (s *IdentityService) Me(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// SearchUsers finds users by username or display name. The caller and
// anyone in a block relation with the caller (either direction) never
// appear in results.
func (s *IdentityService) SearchUsers(ctx context.Context, callerID uuid.UUID, query string, limit int) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.User{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	blocks, err := s.blockRepo.ListInvolving(ctx, callerID)
	if err != nil {
		return nil, err
	}
	exclude := make([]uuid.UUID, 0, len(blocks)+1)
	exclude = append(exclude, callerID)
	for _, b := range blocks {
		if b.BlockerID == callerID {
			exclude = append(exclude, b.BlockedID)
		} else {
			exclude = append(exclude, b.BlockerID)
		}
	}

	users, err := s.userRepo.Search(ctx, query, exclude, limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *IdentityService) generateToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":          user.Subject,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"exp":          time.Now().Add(24 * time.Hour).Unix(),
		"iat":          time.Now().Unix(),
	}
	if user.Email != nil {
		claims["email"] = *user.Email
	}
	if user.AvatarURL != nil {
		claims["avatar_url"] = *user.AvatarURL
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyPassword(password, encoded string) bool {
	saltB64, hashB64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expectedHash) == 1
}
