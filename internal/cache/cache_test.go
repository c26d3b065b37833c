package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/local-briefing/internal/models"
)

func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := models.Location{City: "Cape Town", Country: "South Africa", CountryCode: "za"}
	if err := c.Set(ctx, "current", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "current")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != val {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "current", models.DefaultLocation(), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(2 * time.Minute)

	_, ok, err := c.Get(ctx, "current")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if n := len(c.data); n != 0 {
		t.Errorf("len(data) = %d, expired entry should be deleted", n)
	}
}

func TestInMemoryCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "current", models.DefaultLocation(), time.Minute); err == nil {
		t.Error("Set() error = nil, want context error")
	}
	if _, _, err := c.Get(ctx, "current"); err == nil {
		t.Error("Get() error = nil, want context error")
	}
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "current", models.DefaultLocation(), time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, _, _ = c.Get(ctx, "current")
		}()
	}
	wg.Wait()

	if _, ok, _ := c.Get(ctx, "current"); !ok {
		t.Error("Get() ok = false after concurrent writes")
	}
}

func TestParseAddrs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "localhost:11211", want: []string{"localhost:11211"}},
		{in: " a:1 , b:2 ,,", want: []string{"a:1", "b:2"}},
	}
	for _, tt := range tests {
		got := parseAddrs(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("parseAddrs(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseAddrs(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{ttl: 0, want: 3600},
		{ttl: 500 * time.Millisecond, want: 3600},
		{ttl: 10 * time.Minute, want: 600},
		{ttl: 31 * 24 * time.Hour, want: 3600},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "current", models.DefaultLocation(), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "current")
	}
}
