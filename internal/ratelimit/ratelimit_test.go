package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mfenderov/multichat/internal/store"
)

func TestLimiter_Boundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemory(0, store.WithClock(func() time.Time { return now }))
	defer mem.Close()

	l := New(mem, Config{Requests: 10, Window: 60 * time.Second})
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := l.Check(ctx, "ip:abc")
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected, want allowed", i)
		}
	}

	d, err := l.Check(ctx, "ip:abc")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Allowed {
		t.Fatal("11th request allowed, want rejected")
	}
	if d.RetryAfter() != 60 {
		t.Errorf("RetryAfter() = %d, want 60", d.RetryAfter())
	}
	if !strings.Contains(d.Message(), "try again in 60 seconds") {
		t.Errorf("Message() = %q", d.Message())
	}

	// other identities are unaffected
	if d, _ := l.Check(ctx, "ip:other"); !d.Allowed {
		t.Error("other identity should be allowed")
	}

	now = now.Add(61 * time.Second)
	d, err = l.Check(ctx, "ip:abc")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Allowed || d.Count != 1 {
		t.Errorf("after window: %+v, want a fresh counter", d)
	}
}

func TestLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := New(store.NewRedis(client), Config{Requests: 2, Window: 30 * time.Second, KeyPrefix: "mc:"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, err := l.Check(ctx, "user:7"); err != nil || !d.Allowed {
			t.Fatalf("request %d: %+v, %v", i+1, d, err)
		}
	}
	if d, _ := l.Check(ctx, "user:7"); d.Allowed {
		t.Fatal("3rd request allowed")
	}
	if !mr.Exists("mc:rl:user:7") {
		t.Error("expected counter key mc:rl:user:7")
	}

	mr.FastForward(31 * time.Second)
	if d, _ := l.Check(ctx, "user:7"); !d.Allowed {
		t.Error("expected a fresh window after expiry")
	}
}

type failingCounter struct{}

func (failingCounter) IncrementCapped(context.Context, string, int, time.Duration) (store.Hit, error) {
	return store.Hit{}, errors.New("connection refused")
}

func TestLimiter_StoreFailureAllows(t *testing.T) {
	l := New(failingCounter{}, Config{})
	d, err := l.Check(context.Background(), "ip:x")
	if err == nil {
		t.Error("expected the store error to be returned")
	}
	if !d.Allowed {
		t.Error("store failure should not reject requests")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"}, "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, "10.0.0.1:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "192.0.2.44"}, "10.0.0.1:1234", "192.0.2.44"},
		{"invalid header skipped", map[string]string{"CF-Connecting-IP": "not-an-ip", "X-Real-IP": "192.0.2.44"}, "10.0.0.1:1234", "192.0.2.44"},
		{"socket address", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"ipv6 socket", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"nothing valid", map[string]string{"X-Forwarded-For": "garbage"}, "pipe", UnknownIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/ask", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	r := httptest.NewRequest("POST", "/ask", nil)
	r.RemoteAddr = "192.0.2.1:5555"

	ipID := Identity(r, "X-User-ID")
	if !strings.HasPrefix(ipID, "ip:") || strings.Contains(ipID, "192.0.2.1") {
		t.Errorf("Identity() = %q, want hashed ip identity", ipID)
	}

	r.Header.Set("X-User-ID", "42")
	if got := Identity(r, "X-User-ID"); got != "user:42" {
		t.Errorf("Identity() = %q, want user:42", got)
	}
	if got := Identity(r, ""); got != ipID {
		t.Errorf("without a trusted header the user id must be ignored, got %q", got)
	}
}
