package bot

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"bot-payout/internal/audit"
	"bot-payout/internal/journal"
	"bot-payout/internal/metrics"
	"bot-payout/internal/provider"
	"bot-payout/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const deniedText = "Akses ditolak."

// Sender is the outbound side of the chat transport the engine depends on.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// EngineConfig tunes the bot engine.
type EngineConfig struct {
	OwnerID       int64
	DepositMethod string
	TransferNote  string
	HistoryLimit  int
}

// Engine routes inbound chat events to the wizard, the provider client and
// the journal, and renders results back through the transport.
type Engine struct {
	cfg      EngineConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	journal  *journal.Store
	wizards  *wizard.Store
	provider *provider.Client
	sender   Sender
	pending  *PendingStore
	audit    *audit.Store
}

// New creates the bot engine.
func New(cfg EngineConfig, logger *slog.Logger, m *metrics.Metrics, store *journal.Store, wizards *wizard.Store, client *provider.Client, sender Sender, pending *PendingStore, auditStore *audit.Store) *Engine {
	if cfg.DepositMethod == "" {
		cfg.DepositMethod = "qris"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "bot"),
		metrics:  m,
		journal:  store,
		wizards:  wizards,
		provider: client,
		sender:   sender,
		pending:  pending,
		audit:    auditStore,
	}
}

// ProcessUpdate handles one inbound Telegram update to completion. Every
// failure is converted into a user-visible message here; nothing escapes
// to the update loop.
func (e *Engine) ProcessUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		e.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		e.handleMessage(ctx, update.Message)
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !e.authorize(ctx, msg.From.ID, msg.Chat.ID) {
		return
	}

	e.journal.TouchUser(msg.From.ID, msg.From.UserName)
	kind := "text"
	if msg.IsCommand() {
		kind = "command"
	}
	e.recordAudit(ctx, msg.Chat.ID, msg.From.ID, "in", kind, msg.Text)

	if msg.IsCommand() {
		e.handleCommand(ctx, msg)
		return
	}
	e.handleText(ctx, msg)
}

// authorize enforces the single-owner gate. Non-owner events get a fixed
// denial and a security log entry, nothing else.
func (e *Engine) authorize(ctx context.Context, userID, chatID int64) bool {
	if userID == e.cfg.OwnerID {
		return true
	}
	e.logger.Warn("unauthorized access rejected", "user_id", userID, "chat_id", chatID)
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues("auth").Inc()
	}
	e.reply(ctx, chatID, deniedText)
	return false
}

func (e *Engine) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := wizard.Key{UserID: msg.From.ID, ChatID: chatID}
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		e.reply(ctx, chatID, "Halo! Bot payout siap.\n\n"+helpText)
	case "help":
		e.reply(ctx, chatID, helpText)
	case "channels":
		channels, err := e.provider.ListChannels(ctx)
		if err != nil {
			e.replyProviderError(ctx, chatID, "list channels", err)
			return
		}
		e.reply(ctx, chatID, formatChannels(channels))
	case "cekrek":
		e.startWizard(ctx, key, wizard.KindCheckAccount)
	case "transfer":
		e.startWizard(ctx, key, wizard.KindCreateTransfer)
	case "deposit":
		e.startWizard(ctx, key, wizard.KindCreateDeposit)
	case "status":
		e.handleStatus(ctx, chatID, args)
	case "history":
		records := e.journal.ListForUser(msg.From.ID, e.cfg.HistoryLimit)
		e.reply(ctx, chatID, formatHistory(records))
	case "settings":
		e.handleSettings(ctx, chatID, args)
	case "stats":
		e.reply(ctx, chatID, formatStats(e.journal.Stats()))
	case "cancel":
		if e.wizards.Cancel(key) {
			e.reply(ctx, chatID, "Wizard dibatalkan.")
		} else {
			e.reply(ctx, chatID, "Tidak ada wizard yang berjalan.")
		}
	default:
		e.reply(ctx, chatID, "Perintah tidak dikenal. Ketik /help.")
	}
}

func (e *Engine) startWizard(ctx context.Context, key wizard.Key, kind wizard.Kind) {
	prompt, err := e.wizards.Start(key, kind)
	if err != nil {
		e.logger.Error("start wizard failed", "kind", kind, "error", err)
		e.reply(ctx, key.ChatID, "Gagal memulai wizard.")
		return
	}
	e.reply(ctx, key.ChatID, prompt)
}

func (e *Engine) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := wizard.Key{UserID: msg.From.ID, ChatID: chatID}

	res, err := e.wizards.Submit(key, msg.Text)
	if err != nil {
		if errors.Is(err, wizard.ErrNoActiveSession) {
			e.reply(ctx, chatID, "Tidak ada wizard yang berjalan. Ketik /help untuk daftar perintah.")
			return
		}
		e.logger.Error("wizard submit failed", "error", err)
		e.reply(ctx, chatID, "Terjadi kesalahan. Coba lagi.")
		return
	}

	switch {
	case res.Invalid != "":
		text := res.Invalid
		if res.Aborted {
			text += " Sesi dibatalkan."
		}
		e.reply(ctx, chatID, text)
	case res.Prompt != "":
		e.reply(ctx, chatID, res.Prompt)
	case res.Done != nil:
		e.finalizeWizard(ctx, chatID, res.Done)
	}
}

func (e *Engine) finalizeWizard(ctx context.Context, chatID int64, fin *wizard.Finalize) {
	switch fin.Kind {
	case wizard.KindCheckAccount:
		res, err := e.provider.CheckAccount(ctx, fin.Fields["bank_code"], fin.Fields["account_number"])
		if err != nil {
			e.replyProviderError(ctx, chatID, "check account", err)
			return
		}
		e.reply(ctx, chatID, formatCheckResult(res))

	case wizard.KindCreateTransfer:
		fee := e.computeFee(fin.Amount)
		conf := Confirmation{
			Action:      ActionTransfer,
			RefID:       fin.RefID,
			BankCode:    fin.Fields["bank_code"],
			AccountNo:   fin.Fields["account_number"],
			AccountName: fin.Fields["account_name"],
			Amount:      fin.Amount,
			Fee:         fee,
			Total:       fin.Amount + fee,
		}
		e.sendConfirmation(ctx, chatID, formatTransferSummary(conf), conf)

	case wizard.KindCreateDeposit:
		fee := e.computeFee(fin.Amount)
		conf := Confirmation{
			Action: ActionDeposit,
			RefID:  fin.RefID,
			Amount: fin.Amount,
			Fee:    fee,
			Total:  fin.Amount,
		}
		e.sendConfirmation(ctx, chatID, formatDepositSummary(conf), conf)
	}
}

func (e *Engine) computeFee(amount int64) int64 {
	settings := e.journal.Settings()
	return int64(math.Round(float64(amount) * settings.FeePercent / 100))
}

func (e *Engine) sendConfirmation(ctx context.Context, chatID int64, summary string, conf Confirmation) {
	data, err := e.pending.Encode(ctx, conf)
	if err != nil {
		e.logger.Error("encode confirmation failed", "error", err)
		e.reply(ctx, chatID, "Gagal menyiapkan konfirmasi. Coba ulangi.")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Kirim", data),
			tgbotapi.NewInlineKeyboardButtonData("Batal", cancelData),
		),
	)
	if err := e.sender.SendWithKeyboard(ctx, chatID, summary, keyboard); err != nil {
		e.logger.Error("send confirmation failed", "error", err)
	}
	e.recordAudit(ctx, chatID, e.cfg.OwnerID, "out", "reply", summary)
}

func (e *Engine) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	if !e.authorize(ctx, cq.From.ID, chatID) {
		e.answerCallback(ctx, cq.ID, deniedText)
		return
	}
	e.recordAudit(ctx, chatID, cq.From.ID, "in", "callback", cq.Data)

	if cq.Data == cancelData {
		e.answerCallback(ctx, cq.ID, "Dibatalkan")
		e.edit(ctx, chatID, cq.Message.MessageID, "Dibatalkan.")
		return
	}

	conf, err := e.pending.Decode(ctx, cq.Data)
	if err != nil {
		e.answerCallback(ctx, cq.ID, "Konfirmasi kadaluarsa")
		e.edit(ctx, chatID, cq.Message.MessageID, "Konfirmasi sudah tidak berlaku. Ulangi perintah.")
		return
	}

	e.answerCallback(ctx, cq.ID, "Diproses")
	switch conf.Action {
	case ActionTransfer:
		e.executeTransfer(ctx, chatID, cq.Message.MessageID, conf)
	case ActionDeposit:
		e.executeDeposit(ctx, chatID, cq.Message.MessageID, conf)
	default:
		e.edit(ctx, chatID, cq.Message.MessageID, "Aksi tidak dikenal.")
	}
}

func (e *Engine) executeTransfer(ctx context.Context, chatID int64, messageID int, conf *Confirmation) {
	rec := journal.Record{
		RefID:       conf.RefID,
		UserID:      e.cfg.OwnerID,
		Kind:        journal.KindTransfer,
		BankCode:    conf.BankCode,
		AccountNo:   conf.AccountNo,
		AccountName: conf.AccountName,
		Amount:      conf.Amount,
		Fee:         conf.Fee,
		Total:       conf.Total,
		Note:        e.cfg.TransferNote,
	}
	stored, err := e.journal.Append(rec)
	if err != nil {
		e.logger.Error("journal append failed", "error", err, "ref_id", conf.RefID)
	}

	res, err := e.provider.CreateTransfer(ctx, provider.TransferRequest{
		BankCode:    conf.BankCode,
		AccountNo:   conf.AccountNo,
		AccountName: conf.AccountName,
		Amount:      conf.Amount,
		RefID:       conf.RefID,
		Note:        e.cfg.TransferNote,
	})
	if err != nil {
		if _, uerr := e.journal.UpdateStatus(stored.ID, journal.StatusFailed, map[string]any{"error": err.Error()}); uerr != nil {
			e.logger.Error("mark transfer failed", "error", uerr, "id", stored.ID)
		}
		e.edit(ctx, chatID, messageID, "Transfer gagal: "+provider.ErrorMessage(err))
		return
	}

	meta := map[string]any{"provider_id": res.ID}
	if res.Fee > 0 {
		meta["provider_fee"] = res.Fee
	}
	status := res.Status
	if status == "unknown" {
		status = journal.StatusPending
	}
	if _, err := e.journal.UpdateStatus(stored.ID, status, meta); err != nil {
		e.logger.Error("update transfer status failed", "error", err, "id", stored.ID)
	}

	text := "Transfer dibuat.\nRef: " + conf.RefID + "\nStatus: " + status
	if res.ID != "" {
		text += "\nID provider: " + res.ID
	}
	if res.Message != "" {
		text += "\n" + res.Message
	}
	e.edit(ctx, chatID, messageID, text)
}

func (e *Engine) executeDeposit(ctx context.Context, chatID int64, messageID int, conf *Confirmation) {
	rec := journal.Record{
		RefID:  conf.RefID,
		UserID: e.cfg.OwnerID,
		Kind:   journal.KindDeposit,
		Amount: conf.Amount,
		Fee:    conf.Fee,
		Total:  conf.Total,
	}
	stored, err := e.journal.Append(rec)
	if err != nil {
		e.logger.Error("journal append failed", "error", err, "ref_id", conf.RefID)
	}

	res, err := e.provider.CreateDeposit(ctx, provider.DepositRequest{
		Method: e.cfg.DepositMethod,
		Amount: conf.Amount,
		RefID:  conf.RefID,
	})
	if err != nil {
		if _, uerr := e.journal.UpdateStatus(stored.ID, journal.StatusFailed, map[string]any{"error": err.Error()}); uerr != nil {
			e.logger.Error("mark deposit failed", "error", uerr, "id", stored.ID)
		}
		e.edit(ctx, chatID, messageID, "Deposit gagal: "+provider.ErrorMessage(err))
		return
	}

	meta := map[string]any{"provider_id": res.ID}
	if res.QRString != "" {
		meta["qr_string"] = res.QRString
	}
	if res.ExpiredAt != "" {
		meta["expired_at"] = res.ExpiredAt
	}
	status := res.Status
	if status == "unknown" {
		status = journal.StatusPending
	}
	if _, err := e.journal.UpdateStatus(stored.ID, status, meta); err != nil {
		e.logger.Error("update deposit status failed", "error", err, "id", stored.ID)
	}

	text := "Deposit dibuat.\nRef: " + conf.RefID + "\nStatus: " + status
	if res.ExpiredAt != "" {
		text += "\nBerlaku sampai: " + res.ExpiredAt
	}
	if res.QRString != "" {
		text += "\nQR: " + res.QRString
	}
	e.edit(ctx, chatID, messageID, text)
}

func (e *Engine) handleStatus(ctx context.Context, chatID int64, arg string) {
	if arg == "" {
		e.reply(ctx, chatID, "Format: /status <id atau ref>")
		return
	}

	rec, err := e.journal.Get(arg)
	if err != nil {
		e.reply(ctx, chatID, "Transaksi tidak ditemukan: "+arg)
		return
	}

	providerID := rec.ID
	if raw, ok := rec.ProviderMeta["provider_id"]; ok {
		if str, ok := raw.(string); ok && str != "" {
			providerID = str
		}
	}

	var status, message string
	if rec.Kind == journal.KindDeposit {
		res, err := e.provider.DepositStatus(ctx, providerID)
		if err != nil {
			e.replyProviderError(ctx, chatID, "deposit status", err)
			return
		}
		status = res.Status
	} else {
		res, err := e.provider.TransferStatus(ctx, providerID)
		if err != nil {
			e.replyProviderError(ctx, chatID, "transfer status", err)
			return
		}
		status = res.Status
		message = res.Message
	}

	if status != "" && status != "unknown" && status != rec.Status {
		updated, err := e.journal.UpdateStatus(rec.ID, status, nil)
		if err != nil {
			e.logger.Error("update status from poll failed", "error", err, "id", rec.ID)
		} else {
			rec = updated
		}
	}

	text := formatRecord(rec)
	if message != "" {
		text += "\n" + message
	}
	e.reply(ctx, chatID, text)
}

func (e *Engine) handleSettings(ctx context.Context, chatID int64, args string) {
	if args == "" {
		e.reply(ctx, chatID, formatSettings(e.journal.Settings()))
		return
	}

	parts := strings.Fields(args)
	if len(parts) != 3 || parts[0] != "set" {
		e.reply(ctx, chatID, "Format: /settings set <kunci> <nilai>")
		return
	}
	key, value := parts[1], parts[2]

	updated, err := e.journal.UpdateSettings(func(s *journal.Settings) {
		switch key {
		case "min_deposit":
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
				s.MinDeposit = parsed
			}
		case "max_deposit":
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
				s.MaxDeposit = parsed
			}
		case "fee_percent":
			if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed >= 0 {
				s.FeePercent = parsed
			}
		}
	})
	if err != nil {
		e.logger.Error("persist settings failed", "error", err)
	}
	e.reply(ctx, chatID, formatSettings(updated))
}

func (e *Engine) reply(ctx context.Context, chatID int64, text string) {
	if err := e.sender.SendText(ctx, chatID, text); err != nil {
		e.logger.Error("send message failed", "error", err, "chat_id", chatID)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("tg_send").Inc()
		}
		return
	}
	e.recordAudit(ctx, chatID, e.cfg.OwnerID, "out", "reply", text)
}

func (e *Engine) replyProviderError(ctx context.Context, chatID int64, op string, err error) {
	e.logger.Warn("provider call failed", "op", op, "error", err)
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues("provider").Inc()
	}
	e.reply(ctx, chatID, provider.ErrorMessage(err))
}

func (e *Engine) edit(ctx context.Context, chatID int64, messageID int, text string) {
	if err := e.sender.EditText(ctx, chatID, messageID, text); err != nil {
		e.logger.Error("edit message failed", "error", err, "chat_id", chatID)
		e.reply(ctx, chatID, text)
	}
}

func (e *Engine) answerCallback(ctx context.Context, callbackID, text string) {
	if err := e.sender.AnswerCallback(ctx, callbackID, text); err != nil {
		e.logger.Warn("answer callback failed", "error", err)
	}
}

func (e *Engine) recordAudit(ctx context.Context, chatID, userID int64, direction, kind, content string) {
	if e.audit == nil {
		return
	}
	err := e.audit.Insert(ctx, audit.Entry{
		ChatID:    chatID,
		UserID:    userID,
		Direction: direction,
		Kind:      kind,
		Content:   content,
	})
	if err != nil {
		e.logger.Warn("audit insert failed", "error", err)
	}
}
