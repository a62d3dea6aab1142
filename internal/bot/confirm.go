package bot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bot-payout/internal/cache"

	"github.com/google/uuid"
)

// callbackDataLimit is the Telegram Bot API limit on callback_data bytes.
// Payloads that fit are embedded inline; larger ones are stored
// server-side under a short token.
const callbackDataLimit = 64

const (
	inlinePrefix = "c:"
	tokenPrefix  = "t:"
	// cancelData marks the decline button of a confirmation keyboard.
	cancelData = "x"
)

// pendingTTL bounds how long an unredeemed confirmation stays valid.
const pendingTTL = 30 * time.Minute

// ErrConfirmationExpired is returned when a callback payload can no longer
// be resolved.
var ErrConfirmationExpired = errors.New("confirmation expired or invalid")

// Confirmation is the fully collected wizard output awaiting an explicit
// accept/cancel decision. It must round-trip through Encode/Decode
// unchanged so acceptance reconstructs the exact collected data.
type Confirmation struct {
	Action      string `json:"a"`
	RefID       string `json:"r"`
	BankCode    string `json:"b,omitempty"`
	AccountNo   string `json:"n,omitempty"`
	AccountName string `json:"o,omitempty"`
	Amount      int64  `json:"m"`
	Fee         int64  `json:"f"`
	Total       int64  `json:"t"`
}

// Confirmation actions.
const (
	ActionTransfer = "transfer"
	ActionDeposit  = "deposit"
)

// PendingStore resolves confirmation payloads that were too large to embed
// in callback data. Redis is the primary backend; an in-memory map serves
// as fallback when Redis is unavailable.
type PendingStore struct {
	cache  *cache.Redis
	logger *slog.Logger

	mu  sync.Mutex
	mem map[string]memEntry
}

type memEntry struct {
	payload []byte
	expires time.Time
}

// NewPendingStore creates a pending confirmation store.
func NewPendingStore(redis *cache.Redis, logger *slog.Logger) *PendingStore {
	return &PendingStore{
		cache:  redis,
		logger: logger.With("component", "pending"),
		mem:    make(map[string]memEntry),
	}
}

// Encode serializes the confirmation into callback data: inline when it
// fits the transport limit, token-referenced otherwise.
func (p *PendingStore) Encode(ctx context.Context, conf Confirmation) (string, error) {
	payload, err := json.Marshal(conf)
	if err != nil {
		return "", fmt.Errorf("marshal confirmation: %w", err)
	}

	inline := inlinePrefix + base64.RawURLEncoding.EncodeToString(payload)
	if len(inline) <= callbackDataLimit {
		return inline, nil
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	p.put(ctx, token, payload)
	return tokenPrefix + token, nil
}

// Decode resolves callback data back into the original confirmation.
func (p *PendingStore) Decode(ctx context.Context, data string) (*Confirmation, error) {
	var payload []byte
	switch {
	case strings.HasPrefix(data, inlinePrefix):
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(data, inlinePrefix))
		if err != nil {
			return nil, ErrConfirmationExpired
		}
		payload = decoded
	case strings.HasPrefix(data, tokenPrefix):
		stored, ok := p.get(ctx, strings.TrimPrefix(data, tokenPrefix))
		if !ok {
			return nil, ErrConfirmationExpired
		}
		payload = stored
	default:
		return nil, ErrConfirmationExpired
	}

	var conf Confirmation
	if err := json.Unmarshal(payload, &conf); err != nil {
		return nil, ErrConfirmationExpired
	}
	return &conf, nil
}

func (p *PendingStore) put(ctx context.Context, token string, payload []byte) {
	if p.cache != nil {
		err := p.cache.SetJSON(ctx, "confirm:"+token, json.RawMessage(payload), pendingTTL)
		if err == nil {
			return
		}
		p.logger.Warn("store pending confirmation in redis failed, using memory", "error", err)
	}

	p.mu.Lock()
	p.sweepLocked(time.Now())
	p.mem[token] = memEntry{payload: payload, expires: time.Now().Add(pendingTTL)}
	p.mu.Unlock()
}

func (p *PendingStore) get(ctx context.Context, token string) ([]byte, bool) {
	if p.cache != nil {
		var raw json.RawMessage
		ok, err := p.cache.GetJSON(ctx, "confirm:"+token, &raw)
		if err != nil {
			p.logger.Warn("read pending confirmation from redis failed", "error", err)
		} else if ok {
			return raw, true
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(time.Now())
	entry, ok := p.mem[token]
	if !ok {
		return nil, false
	}
	delete(p.mem, token)
	return entry.payload, true
}

func (p *PendingStore) sweepLocked(now time.Time) {
	for token, entry := range p.mem {
		if now.After(entry.expires) {
			delete(p.mem, token)
		}
	}
}
