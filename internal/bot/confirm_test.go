package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestPendingStore() *PendingStore {
	return NewPendingStore(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConfirmationInlineRoundTrip(t *testing.T) {
	p := newTestPendingStore()
	ctx := context.Background()

	conf := Confirmation{Action: "d", RefID: "1", Amount: 1, Total: 1}
	data, err := p.Encode(ctx, conf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(data, inlinePrefix) {
		t.Fatalf("small payload should be inline, got %q", data)
	}
	if len(data) > callbackDataLimit {
		t.Fatalf("callback data exceeds transport limit: %d bytes", len(data))
	}

	decoded, err := p.Decode(ctx, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != conf {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *decoded, conf)
	}
}

func TestConfirmationTokenRoundTrip(t *testing.T) {
	p := newTestPendingStore()
	ctx := context.Background()

	conf := Confirmation{
		Action:      ActionTransfer,
		RefID:       "TRF-1756617600000",
		BankCode:    "ovo",
		AccountNo:   "62895600689900",
		AccountName: "Arfi",
		Amount:      10000,
		Fee:         70,
		Total:       10070,
	}
	data, err := p.Encode(ctx, conf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(data, tokenPrefix) {
		t.Fatalf("large payload should fall back to a token, got %q", data)
	}
	if len(data) > callbackDataLimit {
		t.Fatalf("callback data exceeds transport limit: %d bytes", len(data))
	}

	decoded, err := p.Decode(ctx, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != conf {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *decoded, conf)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	p := newTestPendingStore()
	ctx := context.Background()

	for _, data := range []string{"", "x", "nonsense", "t:unknown-token", "c:!!!not-base64!!!"} {
		if _, err := p.Decode(ctx, data); !errors.Is(err, ErrConfirmationExpired) {
			t.Fatalf("data %q: expected ErrConfirmationExpired, got %v", data, err)
		}
	}
}
