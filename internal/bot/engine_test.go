package bot

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"bot-payout/internal/journal"
	"bot-payout/internal/provider"
	"bot-payout/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const testOwnerID = int64(42)

type fakeSender struct {
	texts     []string
	kbTexts   []string
	keyboards []tgbotapi.InlineKeyboardMarkup
	edits     []string
	answers   []string
}

func (f *fakeSender) SendText(ctx context.Context, chatID int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	f.kbTexts = append(f.kbTexts, text)
	f.keyboards = append(f.keyboards, keyboard)
	return nil
}

func (f *fakeSender) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	if len(f.texts) == 0 {
		t.Fatal("no text messages sent")
	}
	return f.texts[len(f.texts)-1]
}

func newTestEngine(t *testing.T, providerHandler http.HandlerFunc) (*Engine, *fakeSender, *journal.Store, *PendingStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if providerHandler == nil {
		providerHandler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
	srv := httptest.NewServer(providerHandler)
	t.Cleanup(srv.Close)

	store, err := journal.Open(journal.Config{
		Path:     filepath.Join(t.TempDir(), "journal.json"),
		Defaults: journal.Settings{MinDeposit: 10000, MaxDeposit: 10000000, FeePercent: 0.7},
	}, logger, nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}

	wizards := wizard.NewStore(wizard.Config{
		DepositBounds: func() wizard.Bounds {
			settings := store.Settings()
			return wizard.Bounds{Min: settings.MinDeposit, Max: settings.MaxDeposit}
		},
		AbortOnInvalidAmount: true,
	}, logger, nil)

	client := provider.New(provider.Config{BaseURL: srv.URL, APIKey: "test", RetryMax: 0}, logger, nil, nil)
	sender := &fakeSender{}
	pending := NewPendingStore(nil, logger)
	engine := New(EngineConfig{OwnerID: testOwnerID}, logger, nil, store, wizards, client, sender, pending, nil)
	return engine, sender, store, pending
}

func commandUpdate(userID, chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if idx := strings.Index(text, " "); idx > 0 {
		cmdLen = idx
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "arfi"},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: cmdLen},
		},
	}}
}

func textUpdate(userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}}
}

func callbackUpdate(userID, chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: chatID},
		},
	}}
}

func TestNonOwnerIsDenied(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)

	engine.ProcessUpdate(context.Background(), commandUpdate(999, 999, "/start"))
	if got := sender.lastText(t); got != deniedText {
		t.Fatalf("expected denial, got %q", got)
	}

	engine.ProcessUpdate(context.Background(), callbackUpdate(999, 999, "x"))
	if len(sender.edits) != 0 {
		t.Fatal("denied callback must not edit messages")
	}
}

func TestHelpCommand(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)

	engine.ProcessUpdate(context.Background(), commandUpdate(testOwnerID, 1, "/help"))
	if got := sender.lastText(t); got != helpText {
		t.Fatalf("expected help text, got %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)

	engine.ProcessUpdate(context.Background(), commandUpdate(testOwnerID, 1, "/frobnicate"))
	if got := sender.lastText(t); !strings.Contains(got, "tidak dikenal") {
		t.Fatalf("expected unknown-command reply, got %q", got)
	}
}

func TestTextWithoutWizard(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)

	engine.ProcessUpdate(context.Background(), textUpdate(testOwnerID, 1, "halo"))
	if got := sender.lastText(t); !strings.Contains(got, "Tidak ada wizard") {
		t.Fatalf("expected no-wizard reply, got %q", got)
	}
}

func TestCancelCallback(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)

	engine.ProcessUpdate(context.Background(), callbackUpdate(testOwnerID, 1, cancelData))
	if len(sender.edits) != 1 || sender.edits[0] != "Dibatalkan." {
		t.Fatalf("expected cancellation edit, got %v", sender.edits)
	}
}

func TestExpiredCallback(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)

	engine.ProcessUpdate(context.Background(), callbackUpdate(testOwnerID, 1, "t:0123456789abcdef"))
	if len(sender.edits) != 1 || !strings.Contains(sender.edits[0], "tidak berlaku") {
		t.Fatalf("expected expiry edit, got %v", sender.edits)
	}
}

func TestTransferWizardEndToEnd(t *testing.T) {
	var gotForm map[string]string
	engine, sender, store, pending := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transfer/create" {
			t.Errorf("unexpected endpoint %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"reff_id":       r.PostFormValue("reff_id"),
			"kode_bank":     r.PostFormValue("kode_bank"),
			"nomor_akun":    r.PostFormValue("nomor_akun"),
			"nama_penerima": r.PostFormValue("nama_penerima"),
			"nominal":       r.PostFormValue("nominal"),
		}
		w.Write([]byte(`{"status":true,"data":{"id":"991","status":"pending"}}`))
	})
	ctx := context.Background()

	engine.ProcessUpdate(ctx, commandUpdate(testOwnerID, 1, "/transfer"))
	for _, input := range []string{"ovo", "62895600689900", "Arfi", "10000"} {
		engine.ProcessUpdate(ctx, textUpdate(testOwnerID, 1, input))
	}

	if len(sender.keyboards) != 1 {
		t.Fatalf("expected one confirmation keyboard, got %d", len(sender.keyboards))
	}
	rows := sender.keyboards[0].InlineKeyboard
	if len(rows) != 1 || len(rows[0]) != 2 {
		t.Fatalf("unexpected keyboard shape: %v", rows)
	}
	confirmBtn, cancelBtn := rows[0][0], rows[0][1]
	if cancelBtn.CallbackData == nil || *cancelBtn.CallbackData != cancelData {
		t.Fatalf("unexpected cancel button: %+v", cancelBtn)
	}
	if confirmBtn.CallbackData == nil {
		t.Fatal("confirm button has no callback data")
	}

	conf, err := pending.Decode(ctx, *confirmBtn.CallbackData)
	if err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if conf.Action != ActionTransfer || conf.BankCode != "ovo" || conf.AccountNo != "62895600689900" || conf.AccountName != "Arfi" {
		t.Fatalf("unexpected confirmation: %+v", conf)
	}
	if conf.Amount != 10000 || conf.Fee != 70 || conf.Total != 10070 {
		t.Fatalf("unexpected amounts: %+v", conf)
	}

	engine.ProcessUpdate(ctx, callbackUpdate(testOwnerID, 1, *confirmBtn.CallbackData))

	if gotForm["reff_id"] != conf.RefID {
		t.Fatalf("expected reff_id %q sent to provider, got %v", conf.RefID, gotForm)
	}
	if gotForm["kode_bank"] != "ovo" || gotForm["nominal"] != "10000" {
		t.Fatalf("unexpected provider form: %v", gotForm)
	}

	rec, err := store.Get(conf.RefID)
	if err != nil {
		t.Fatalf("journal record missing: %v", err)
	}
	if rec.Status != journal.StatusPending {
		t.Fatalf("expected pending record, got %q", rec.Status)
	}
	if rec.ProviderMeta["provider_id"] != "991" {
		t.Fatalf("expected provider id stored, got %v", rec.ProviderMeta)
	}

	if len(sender.edits) != 1 || !strings.Contains(sender.edits[0], "Transfer dibuat") {
		t.Fatalf("expected transfer result edit, got %v", sender.edits)
	}
}

func TestTransferProviderFailureMarksRecordFailed(t *testing.T) {
	engine, sender, store, pending := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"message":"Saldo tidak mencukupi"}`))
	})
	ctx := context.Background()

	conf := Confirmation{
		Action:      ActionTransfer,
		RefID:       "TRF-fail-1",
		BankCode:    "bca",
		AccountNo:   "1234567890",
		AccountName: "Arfi",
		Amount:      5000,
		Total:       5000,
	}
	data, err := pending.Encode(ctx, conf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	engine.ProcessUpdate(ctx, callbackUpdate(testOwnerID, 1, data))

	rec, err := store.Get("TRF-fail-1")
	if err != nil {
		t.Fatalf("journal record missing: %v", err)
	}
	if rec.Status != journal.StatusFailed {
		t.Fatalf("expected failed record, got %q", rec.Status)
	}
	if len(sender.edits) != 1 || !strings.Contains(sender.edits[0], "Saldo tidak mencukupi") {
		t.Fatalf("expected provider message surfaced verbatim, got %v", sender.edits)
	}
}

func TestStatusCommandPollsProvider(t *testing.T) {
	engine, sender, store, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transfer/status" {
			t.Errorf("unexpected endpoint %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":true,"data":{"id":"991","status":"sukses"}}`))
	})
	ctx := context.Background()

	if _, err := store.Append(journal.Record{
		RefID:        "TRF-poll-1",
		UserID:       testOwnerID,
		Kind:         journal.KindTransfer,
		Amount:       10000,
		ProviderMeta: map[string]any{"provider_id": "991"},
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	engine.ProcessUpdate(ctx, commandUpdate(testOwnerID, 1, "/status TRF-poll-1"))

	rec, err := store.Get("TRF-poll-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != journal.StatusSuccess {
		t.Fatalf("expected status synced to success, got %q", rec.Status)
	}
	if got := sender.lastText(t); !strings.Contains(got, "TRF-poll-1") {
		t.Fatalf("expected record summary, got %q", got)
	}
}

func TestSettingsCommand(t *testing.T) {
	engine, sender, store, _ := newTestEngine(t, nil)
	ctx := context.Background()

	engine.ProcessUpdate(ctx, commandUpdate(testOwnerID, 1, "/settings set min_deposit 25000"))
	if store.Settings().MinDeposit != 25000 {
		t.Fatalf("expected min deposit updated, got %d", store.Settings().MinDeposit)
	}
	if got := sender.lastText(t); !strings.Contains(got, "25.000") && !strings.Contains(got, "25000") {
		t.Fatalf("expected settings echo, got %q", got)
	}
}

func TestCancelCommandStopsWizard(t *testing.T) {
	engine, sender, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	engine.ProcessUpdate(ctx, commandUpdate(testOwnerID, 1, "/deposit"))
	engine.ProcessUpdate(ctx, commandUpdate(testOwnerID, 1, "/cancel"))
	if got := sender.lastText(t); !strings.Contains(got, "dibatalkan") {
		t.Fatalf("expected cancel confirmation, got %q", got)
	}

	engine.ProcessUpdate(ctx, commandUpdate(testOwnerID, 1, "/cancel"))
	if got := sender.lastText(t); !strings.Contains(got, "Tidak ada wizard") {
		t.Fatalf("expected no-wizard reply, got %q", got)
	}
}
