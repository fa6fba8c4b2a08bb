package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	var delays atomic.Int32
	l := New(Config{
		Delay: 100 * time.Millisecond,
		OnDelay: func(host string, _ time.Duration) {
			if host != "test.com" {
				t.Errorf("unexpected host %q", host)
			}
			delays.Add(1)
		},
	})
	ctx := context.Background()

	// Initial token is available immediately.
	start := time.Now()
	if err := l.Wait(ctx, "https://test.com/a/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Logf("warning: first wait took %v", time.Since(start))
	}

	// Next one should wait ~100ms.
	start = time.Now()
	if err := l.Wait(ctx, "https://test.com/b/"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
	if delays.Load() != 1 {
		t.Errorf("expected one delay callback, got %d", delays.Load())
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	l := New(Config{Delay: time.Second})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("host b blocked unexpectedly")
	}
}

func TestLimiter_ZeroDelayAndCancel(t *testing.T) {
	free := New(Config{})
	for i := 0; i < 5; i++ {
		if err := free.Wait(context.Background(), "https://a.com"); err != nil {
			t.Fatal(err)
		}
	}

	slow := New(Config{Delay: time.Hour})
	if err := slow.Wait(context.Background(), "https://a.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Wait(ctx, "https://a.com"); err == nil {
		t.Fatal("expected error for canceled context")
	}

	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background(), "https://a.com"); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}
}

func TestLimiter_PauseModeSleepsBeforeEveryFetch(t *testing.T) {
	var delays atomic.Int32
	l := New(Config{
		Mode:    ModePause,
		Delay:   40 * time.Millisecond,
		OnDelay: func(string, time.Duration) { delays.Add(1) },
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		start := time.Now()
		if err := l.Wait(ctx, "https://test.com/a/"); err != nil {
			t.Fatal(err)
		}
		if dur := time.Since(start); dur < 35*time.Millisecond {
			t.Fatalf("wait %d returned after %v, expected a full pause", i, dur)
		}
	}

	// A slow fetch does not shorten the next pause.
	time.Sleep(60 * time.Millisecond)
	start := time.Now()
	if err := l.Wait(ctx, "https://test.com/b/"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 35*time.Millisecond {
		t.Errorf("expected a full pause after an idle gap, got %v", dur)
	}
	if delays.Load() != 3 {
		t.Errorf("expected three delay callbacks, got %d", delays.Load())
	}

	ctxCancel, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(Config{Mode: ModePause, Delay: time.Hour}).Wait(ctxCancel, "https://a.com"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeInterval, "interval": ModeInterval, "pause": ModePause}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("burst"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
