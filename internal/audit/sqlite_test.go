package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"bot-payout/migrations"
)

func newTestAuditStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), migrations.Files, logger)
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestInsertAndListRecent(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ChatID: 1, UserID: 42, Direction: "in", Kind: "command", Content: "/transfer", CreatedAt: base},
		{ChatID: 1, UserID: 42, Direction: "out", Kind: "reply", Content: "Masukkan kode bank", CreatedAt: base.Add(time.Second)},
		{ChatID: 2, UserID: 99, Direction: "in", Kind: "text", Content: "halo", CreatedAt: base},
	}
	for _, e := range entries {
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.ListRecent(ctx, 42, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for user 42, got %d", len(got))
	}
	if got[0].Kind != "reply" {
		t.Fatalf("expected newest entry first, got %+v", got[0])
	}
	if got[1].Content != "/transfer" {
		t.Fatalf("unexpected entry: %+v", got[1])
	}
}

func TestListRecentLimit(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := s.Insert(ctx, Entry{
			ChatID: 1, UserID: 7, Direction: "in", Kind: "text",
			Content:   "msg",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := s.ListRecent(ctx, 7, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected limit 3 applied, got %d", len(got))
	}
}

func TestInsertDefaultsCreatedAt(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, Entry{ChatID: 1, UserID: 5, Direction: "in", Kind: "text", Content: "x"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.ListRecent(ctx, 5, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at defaulted, got %+v", got)
	}
}
