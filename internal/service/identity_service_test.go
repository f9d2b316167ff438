package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vedran77/courier/internal/domain"
)

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	resp, err := e.identity.Register(ctx, RegisterInput{
		Email:       "alice@example.com",
		Username:    "alice",
		DisplayName: "Alice",
		Password:    "hunter22",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("Register() returned no token")
	}
	if resp.User.PasswordHash == "" {
		t.Fatal("Register() stored no password hash")
	}

	ident, err := e.identity.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if ident.Subject != resp.User.Subject {
		t.Errorf("token subject = %q, want %q", ident.Subject, resp.User.Subject)
	}
	if ident.Username != "alice" {
		t.Errorf("token username = %q, want alice", ident.Username)
	}

	// The resolved identity maps back to the registered row.
	user, err := e.identity.Resolve(ctx, ident)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user.ID != resp.User.ID {
		t.Errorf("Resolve() user = %s, want %s", user.ID, resp.User.ID)
	}

	tests := []struct {
		name    string
		input   LoginInput
		wantErr error
	}{
		{"ok", LoginInput{Email: "alice@example.com", Password: "hunter22"}, nil},
		{"wrong password", LoginInput{Email: "alice@example.com", Password: "hunter23"}, ErrInvalidCreds},
		{"unknown email", LoginInput{Email: "nobody@example.com", Password: "hunter22"}, ErrInvalidCreds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.identity.Login(ctx, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.identity.Register(ctx, RegisterInput{Email: "a@x.io", Username: "a", Password: "password1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := e.identity.Register(ctx, RegisterInput{Email: "a@x.io", Username: "b", Password: "password1"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email error = %v, want %v", err, ErrEmailTaken)
	}
	if _, err := e.identity.Register(ctx, RegisterInput{Email: "b@x.io", Username: "a", Password: "password1"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate username error = %v, want %v", err, ErrUsernameTaken)
	}
}

func TestVerifyTokenRejections(t *testing.T) {
	e := newTestEnv(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "local:someone",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredStr, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "local:someone",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	foreignStr, err := foreign.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("signing foreign token: %v", err)
	}

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noSubjectStr, err := noSubject.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing subjectless token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{"expired", expiredStr},
		{"wrong secret", foreignStr},
		{"no subject", noSubjectStr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.identity.VerifyToken(tt.token); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("VerifyToken() error = %v, want %v", err, ErrUnauthenticated)
			}
		})
	}
}

func TestResolveUpsertsBySubject(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.identity.Resolve(ctx, &domain.Identity{Subject: "ext:42", Username: "kim"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first.DisplayName != "kim" {
		t.Errorf("DisplayName = %q, want fallback to username", first.DisplayName)
	}

	// The same subject resolves to the same row, with refreshed profile
	// fields from the issuer.
	second, err := e.identity.Resolve(ctx, &domain.Identity{Subject: "ext:42", Username: "kim", DisplayName: "Kim L"})
	if err != nil {
		t.Fatalf("Resolve() second call error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Resolve() minted new user %s, want %s", second.ID, first.ID)
	}
	if second.DisplayName != "Kim L" {
		t.Errorf("DisplayName after refresh = %q, want %q", second.DisplayName, "Kim L")
	}

	if _, err := e.identity.Resolve(ctx, &domain.Identity{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Resolve() without subject error = %v, want %v", err, ErrUnauthenticated)
	}
	if _, err := e.identity.Resolve(ctx, nil); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Resolve(nil) error = %v, want %v", err, ErrUnauthenticated)
	}
}

func TestSearchUsersExcludesBlockedAndSelf(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	alice := e.addUser(t, "alice")
	bob := e.addUser(t, "bob")
	e.addUser(t, "bobby")
	carol := e.addUser(t, "carol")

	// One block in each direction; both disappear from alice's results.
	if _, err := e.privacy.ToggleBlock(ctx, alice, bob); err != nil {
		t.Fatalf("ToggleBlock() error = %v", err)
	}
	if _, err := e.privacy.ToggleBlock(ctx, carol, alice); err != nil {
		t.Fatalf("ToggleBlock() error = %v", err)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"blocked user hidden", "bob", []string{"bobby"}},
		{"blocker hidden too", "carol", nil},
		{"self hidden", "alice", nil},
		{"empty query", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := e.identity.SearchUsers(ctx, alice, tt.query, 10)
			if err != nil {
				t.Fatalf("SearchUsers() error = %v", err)
			}
			if len(users) != len(tt.want) {
				t.Fatalf("got %d users, want %d", len(users), len(tt.want))
			}
			for i, name := range tt.want {
				if users[i].Username != name {
					t.Errorf("users[%d] = %q, want %q", i, users[i].Username, name)
				}
			}
		})
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("correct horse")
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}

	if !verifyPassword("correct horse", hash) {
		t.Error("verifyPassword() rejected the right password")
	}
	if verifyPassword("wrong horse", hash) {
		t.Error("verifyPassword() accepted the wrong password")
	}
	if verifyPassword("correct horse", "no-separator") {
		t.Error("verifyPassword() accepted a malformed hash")
	}

	// Fresh salt per hash: the same password encodes differently.
	again, err := hashPassword("correct horse")
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}
	if hash == again {
		t.Error("two hashes of the same password are identical")
	}
}
