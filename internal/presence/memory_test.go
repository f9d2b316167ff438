package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newClockedCache(start time.Time) (*MemoryCache, *time.Time) {
	c := NewMemoryCache()
	now := start
	c.now = func() time.Time { return now }
	return c, &now
}

func TestPresenceExpires(t *testing.T) {
	ctx := context.Background()
	c, now := newClockedCache(time.Unix(1000, 0))
	user := uuid.New()

	if err := c.TouchPresence(ctx, user); err != nil {
		t.Fatalf("TouchPresence() error = %v", err)
	}

	online, err := c.Online(ctx, user)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if !online {
		t.Fatal("Online() = false right after touch")
	}

	*now = now.Add(PresenceTTL + time.Second)
	online, err = c.Online(ctx, user)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if online {
		t.Error("Online() = true past the TTL")
	}

	// A fresh touch restarts the window.
	if err := c.TouchPresence(ctx, user); err != nil {
		t.Fatalf("TouchPresence() error = %v", err)
	}
	online, _ = c.Online(ctx, user)
	if !online {
		t.Error("Online() = false after re-touch")
	}

	if err := c.ClearPresence(ctx, user); err != nil {
		t.Fatalf("ClearPresence() error = %v", err)
	}
	online, _ = c.Online(ctx, user)
	if online {
		t.Error("Online() = true after clear")
	}
}

func TestOnlineMany(t *testing.T) {
	ctx := context.Background()
	c, _ := newClockedCache(time.Unix(1000, 0))

	a, b := uuid.New(), uuid.New()
	if err := c.TouchPresence(ctx, a); err != nil {
		t.Fatalf("TouchPresence() error = %v", err)
	}

	got, err := c.OnlineMany(ctx, []uuid.UUID{a, b})
	if err != nil {
		t.Fatalf("OnlineMany() error = %v", err)
	}
	if !got[a] || got[b] {
		t.Errorf("OnlineMany() = %v, want a online, b offline", got)
	}
}

func TestTypingExpires(t *testing.T) {
	ctx := context.Background()
	c, now := newClockedCache(time.Unix(1000, 0))

	conv := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	if err := c.SetTyping(ctx, conv, alice); err != nil {
		t.Fatalf("SetTyping() error = %v", err)
	}
	if err := c.SetTyping(ctx, conv, bob); err != nil {
		t.Fatalf("SetTyping() error = %v", err)
	}
	// A mark in another conversation must not bleed in.
	if err := c.SetTyping(ctx, uuid.New(), alice); err != nil {
		t.Fatalf("SetTyping() error = %v", err)
	}

	typers, err := c.Typing(ctx, conv)
	if err != nil {
		t.Fatalf("Typing() error = %v", err)
	}
	if len(typers) != 2 {
		t.Fatalf("got %d typers, want 2", len(typers))
	}

	if err := c.ClearTyping(ctx, conv, bob); err != nil {
		t.Fatalf("ClearTyping() error = %v", err)
	}
	typers, _ = c.Typing(ctx, conv)
	if len(typers) != 1 || typers[0] != alice {
		t.Errorf("Typing() after clear = %v, want [alice]", typers)
	}

	*now = now.Add(TypingTTL + time.Millisecond)
	typers, _ = c.Typing(ctx, conv)
	if len(typers) != 0 {
		t.Errorf("Typing() past the TTL = %v, want empty", typers)
	}
}
