package wizard

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"bot-payout/internal/metrics"
)

// ErrNoActiveSession is returned by Submit when the conversation has no
// wizard in progress.
var ErrNoActiveSession = errors.New("no active wizard session")

// Kind identifies a wizard flow.
type Kind string

const (
	KindCheckAccount   Kind = "check_account"
	KindCreateTransfer Kind = "create_transfer"
	KindCreateDeposit  Kind = "create_deposit"
)

// DefaultTTL is how long an idle session survives before the sweeper
// removes it.
const DefaultTTL = 30 * time.Minute

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Key scopes a session to one (user, chat) pair.
type Key struct {
	UserID int64
	ChatID int64
}

// Session tracks one in-progress wizard.
type Session struct {
	Kind      Kind
	Step      int // 1-based
	Fields    map[string]string
	CreatedAt time.Time
}

// Finalize carries the complete field map of a finished wizard plus the
// generated reference id.
type Finalize struct {
	Kind   Kind
	Fields map[string]string
	Amount int64
	RefID  string
}

// Result is the outcome of submitting one wizard step.
type Result struct {
	// Prompt is the next question when more steps remain.
	Prompt string
	// Invalid holds the user-facing validation message when the input was
	// rejected. Aborted reports whether the session was destroyed as part
	// of the rejection.
	Invalid string
	Aborted bool
	// Done is set when the final step completed.
	Done *Finalize
}

// Bounds restricts accepted amounts.
type Bounds struct {
	Min int64
	Max int64
}

// Config tunes wizard behaviour.
type Config struct {
	TransferBounds Bounds
	// DepositBounds is read per submission so runtime settings changes
	// take effect immediately. Nil means no bounds.
	DepositBounds func() Bounds
	// AbortOnInvalidAmount destroys the session when an amount fails
	// validation instead of re-prompting. Default behaviour.
	AbortOnInvalidAmount bool
	TTL                  time.Duration
}

type step struct {
	field  string
	prompt string
	amount bool
}

var flows = map[Kind][]step{
	KindCheckAccount: {
		{field: "bank_code", prompt: "Masukkan kode bank atau e-wallet tujuan (contoh: bca, ovo, dana):"},
		{field: "account_number", prompt: "Masukkan nomor rekening / akun tujuan:"},
	},
	KindCreateTransfer: {
		{field: "bank_code", prompt: "Masukkan kode bank atau e-wallet tujuan (contoh: bca, ovo, dana):"},
		{field: "account_number", prompt: "Masukkan nomor rekening / akun tujuan:"},
		{field: "account_name", prompt: "Masukkan nama pemilik rekening:"},
		{field: "amount", prompt: "Masukkan nominal transfer (angka saja):", amount: true},
	},
	KindCreateDeposit: {
		{field: "amount", prompt: "Masukkan nominal deposit (angka saja):", amount: true},
	},
}

var refPrefixes = map[Kind]string{
	KindCheckAccount:   "CHK",
	KindCreateTransfer: "TRF",
	KindCreateDeposit:  "DEP",
}

// Store owns all wizard sessions, keyed by conversation. At most one
// session exists per key; starting a new wizard overwrites a stale one.
type Store struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Store{
		sessions: make(map[Key]*Session),
		cfg:      cfg,
		logger:   logger.With("component", "wizard"),
		metrics:  m,
		now:      time.Now,
	}
}

// Start discards any existing session for the key, creates a fresh one at
// step 1 and returns the first prompt.
func (s *Store) Start(key Key, kind Kind) (string, error) {
	steps, ok := flows[kind]
	if !ok {
		return "", fmt.Errorf("unknown wizard kind: %s", kind)
	}

	s.mu.Lock()
	s.sessions[key] = &Session{
		Kind:      kind,
		Step:      1,
		Fields:    make(map[string]string, len(steps)),
		CreatedAt: s.now(),
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.WizardSessions.WithLabelValues(string(kind), "started").Inc()
	}
	return steps[0].prompt, nil
}

// Submit feeds one free-text reply into the active session.
func (s *Store) Submit(key Key, rawText string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrNoActiveSession
	}

	steps := flows[sess.Kind]
	cur := steps[sess.Step-1]

	if cur.amount {
		amount, err := parseAmount(rawText)
		if err == nil {
			bounds := s.boundsFor(sess.Kind)
			err = checkBounds(amount, bounds)
		}
		if err != nil {
			res := &Result{Invalid: err.Error()}
			if s.cfg.AbortOnInvalidAmount {
				delete(s.sessions, key)
				res.Aborted = true
				if s.metrics != nil {
					s.metrics.WizardSessions.WithLabelValues(string(sess.Kind), "invalid").Inc()
				}
			}
			return res, nil
		}
		sess.Fields[cur.field] = strconv.FormatInt(amount, 10)
	} else {
		value := strings.TrimSpace(rawText)
		if value == "" {
			return &Result{Invalid: "Input tidak boleh kosong. Coba lagi."}, nil
		}
		sess.Fields[cur.field] = value
	}

	if sess.Step < len(steps) {
		sess.Step++
		return &Result{Prompt: steps[sess.Step-1].prompt}, nil
	}

	delete(s.sessions, key)
	if s.metrics != nil {
		s.metrics.WizardSessions.WithLabelValues(string(sess.Kind), "completed").Inc()
	}

	fin := &Finalize{
		Kind:   sess.Kind,
		Fields: sess.Fields,
		RefID:  fmt.Sprintf("%s-%d", refPrefixes[sess.Kind], s.now().UnixMilli()),
	}
	if raw, ok := sess.Fields["amount"]; ok {
		fin.Amount, _ = strconv.ParseInt(raw, 10, 64)
	}
	return &Result{Done: fin}, nil
}

// Cancel destroys the session unconditionally. Calling it without an
// active session is a no-op.
func (s *Store) Cancel(key Key) bool {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if ok && s.metrics != nil {
		s.metrics.WizardSessions.WithLabelValues(string(sess.Kind), "cancelled").Inc()
	}
	return ok
}

// Active reports whether the key has a session in progress.
func (s *Store) Active(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	return ok
}

// SweepExpired removes sessions older than maxAge measured from creation
// and returns how many were removed. Safe to call concurrently with Submit.
func (s *Store) SweepExpired(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.cfg.TTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > maxAge {
			delete(s.sessions, key)
			removed++
			if s.metrics != nil {
				s.metrics.WizardSessions.WithLabelValues(string(sess.Kind), "expired").Inc()
			}
		}
	}
	if removed > 0 {
		s.logger.Info("expired wizard sessions swept", "count", removed)
	}
	return removed
}

func (s *Store) boundsFor(kind Kind) Bounds {
	switch kind {
	case KindCreateDeposit:
		if s.cfg.DepositBounds != nil {
			return s.cfg.DepositBounds()
		}
		return Bounds{}
	case KindCreateTransfer:
		return s.cfg.TransferBounds
	default:
		return Bounds{}
	}
}

// parseAmount strips every non-digit character and parses the remainder as
// a positive integer.
func parseAmount(text string) (int64, error) {
	cleaned := nonDigits.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, errors.New("Nominal harus berupa angka.")
	}
	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, errors.New("Nominal harus berupa angka.")
	}
	if amount <= 0 {
		return 0, errors.New("Nominal harus lebih dari nol.")
	}
	return amount, nil
}

func checkBounds(amount int64, bounds Bounds) error {
	if bounds.Min > 0 && amount < bounds.Min {
		return fmt.Errorf("Nominal minimal Rp%d.", bounds.Min)
	}
	if bounds.Max > 0 && amount > bounds.Max {
		return fmt.Errorf("Nominal maksimal Rp%d.", bounds.Max)
	}
	return nil
}
