package media

import (
	"bytes"
	"context"
	"testing"

	"complaint-pipeline/internal/config"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFromConfig(ctx, config.Config{MediaDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	body := []byte{0x00, 0x01, 0x02, 0xFF}
	if err := store.Put(ctx, "payloads/abc-123", body, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "payloads/abc-123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, body)
	}
}

func TestLocalStoreMissingKey(t *testing.T) {
	ctx := context.Background()
	store, err := NewFromConfig(ctx, config.Config{MediaDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	if _, err := store.Get(ctx, "payloads/never-stored"); err == nil {
		t.Fatalf("expected error for missing payload")
	}
}

func TestSanitizeKeyStripsTraversal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"payloads/abc", "payloads/abc"},
		{"/payloads/abc", "payloads/abc"},
		{"./payloads/abc", "payloads/abc"},
		{"payloads/../abc", "abc"},
	}
	for _, tt := range tests {
		if got := sanitizeKey(tt.in); got != tt.want {
			t.Fatalf("sanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
