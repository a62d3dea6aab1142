package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"bot-payout/internal/metrics"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record matches the given id or reference.
var ErrNotFound = errors.New("journal record not found")

// Store owns the transaction journal document and its persistence. All
// record mutation goes through Store methods; callers never touch records
// directly.
type Store struct {
	mu  sync.Mutex
	doc document

	// saveMu serializes disk writes so concurrent save requests queue up
	// instead of producing overlapping writes to the backing file.
	saveMu sync.Mutex

	path       string
	backupDir  string
	backupKeep int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Config holds journal persistence settings.
type Config struct {
	Path       string
	BackupDir  string
	BackupKeep int
	Defaults   Settings
}

// Open loads the journal document from disk, back-filling missing fields
// from defaults, and records the startup timestamp. A missing file starts
// a fresh journal.
func Open(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal path is empty")
	}
	if cfg.BackupKeep <= 0 {
		cfg.BackupKeep = 7
	}

	s := &Store{
		path:       cfg.Path,
		backupDir:  cfg.BackupDir,
		backupKeep: cfg.BackupKeep,
		logger:     logger.With("component", "journal"),
		metrics:    m,
		now:        time.Now,
	}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("parse journal %s: %w", cfg.Path, err)
		}
	case os.IsNotExist(err):
		s.logger.Info("journal file missing, starting fresh", "path", cfg.Path)
	default:
		return nil, fmt.Errorf("read journal %s: %w", cfg.Path, err)
	}

	s.migrate(cfg.Defaults)
	s.doc.Counters.LastStartup = s.now()

	if err := s.save(); err != nil {
		return nil, fmt.Errorf("initial journal save: %w", err)
	}
	return s, nil
}

// migrate back-fills fields older journal files may be missing.
func (s *Store) migrate(defaults Settings) {
	if s.doc.Users == nil {
		s.doc.Users = make(map[string]UserInfo)
	}
	if s.doc.Settings.MinDeposit == 0 {
		s.doc.Settings.MinDeposit = defaults.MinDeposit
	}
	if s.doc.Settings.MaxDeposit == 0 {
		s.doc.Settings.MaxDeposit = defaults.MaxDeposit
	}
	if s.doc.Settings.FeePercent == 0 {
		s.doc.Settings.FeePercent = defaults.FeePercent
	}

	fill := func(records []Record, kind string) {
		for i := range records {
			if records[i].ID == "" {
				records[i].ID = uuid.NewString()
			}
			if records[i].Kind == "" {
				records[i].Kind = kind
			}
			if records[i].Status == "" {
				records[i].Status = StatusPending
			}
			if records[i].UpdatedAt.IsZero() {
				records[i].UpdatedAt = records[i].CreatedAt
			}
		}
	}
	fill(s.doc.Transactions, KindTransfer)
	fill(s.doc.Deposits, KindDeposit)
}

// TouchUser records the user in the journal's user map.
func (s *Store) TouchUser(id int64, username string) {
	s.mu.Lock()
	key := strconv.FormatInt(id, 10)
	info, ok := s.doc.Users[key]
	now := s.now()
	if !ok {
		info = UserInfo{ID: id, FirstSeen: now}
	}
	if username != "" {
		info.Username = username
	}
	info.LastSeen = now
	s.doc.Users[key] = info
	s.mu.Unlock()
}

// Append stores a record, assigning an id when absent and defaulting the
// status to pending. Appending an id or reference id that already exists
// updates the stored record in place (idempotent upsert); a success state
// is counted at most once per record.
func (s *Store) Append(rec Record) (Record, error) {
	s.mu.Lock()

	now := s.now()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if existing := s.locate(rec.ID); existing != nil {
		alreadyCounted := existing.Status == StatusSuccess
		rec.CreatedAt = existing.CreatedAt
		s.applyTransition(existing.Status, rec.Status, rec.Kind, rec.Amount, alreadyCounted)
		*existing = rec
	} else {
		s.doc.Counters.TotalRequests++
		s.applyTransition("", rec.Status, rec.Kind, rec.Amount, false)
		switch rec.Kind {
		case KindDeposit:
			s.doc.Deposits = append(s.doc.Deposits, rec)
		default:
			s.doc.Transactions = append(s.doc.Transactions, rec)
		}
	}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.logger.Error("journal save failed after append", "error", err, "id", rec.ID)
		return rec, err
	}
	return rec, nil
}

// UpdateStatus looks a record up by id or reference id and applies the new
// status plus optional provider metadata. The transition into success from
// a non-success state increments the aggregate counters exactly once.
func (s *Store) UpdateStatus(idOrRef, newStatus string, meta map[string]any) (Record, error) {
	s.mu.Lock()

	rec := s.locate(idOrRef)
	if rec == nil {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, idOrRef)
	}

	s.applyTransition(rec.Status, newStatus, rec.Kind, rec.Amount, rec.Status == StatusSuccess)
	rec.Status = newStatus
	rec.UpdatedAt = s.now()
	if len(meta) > 0 {
		if rec.ProviderMeta == nil {
			rec.ProviderMeta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			rec.ProviderMeta[k] = v
		}
	}
	updated := *rec
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.logger.Error("journal save failed after status update", "error", err, "id", updated.ID)
		return updated, err
	}
	return updated, nil
}

// locate finds a record by id first, then by reference id (first match).
// Duplicate reference ids are a data-integrity problem worth flagging but
// not failing on. Caller must hold mu.
func (s *Store) locate(idOrRef string) *Record {
	groups := [][]Record{s.doc.Transactions, s.doc.Deposits}
	for _, records := range groups {
		for i := range records {
			if records[i].ID == idOrRef {
				return &records[i]
			}
		}
	}

	var found *Record
	matches := 0
	for _, records := range groups {
		for i := range records {
			if records[i].RefID != "" && records[i].RefID == idOrRef {
				matches++
				if found == nil {
					found = &records[i]
				}
			}
		}
	}
	if matches > 1 {
		s.logger.Warn("duplicate reference id in journal", "ref_id", idOrRef, "matches", matches)
	}
	return found
}

// applyTransition updates counters for a status change. Caller must hold mu.
func (s *Store) applyTransition(oldStatus, newStatus, kind string, amount int64, alreadyCounted bool) {
	if newStatus == StatusSuccess && !alreadyCounted && oldStatus != StatusSuccess {
		if kind == KindDeposit {
			s.doc.Counters.SuccessfulDeposits++
		} else {
			s.doc.Counters.SuccessfulTransfers++
		}
		s.doc.Counters.TotalVolume += amount
	}
	if newStatus == StatusFailed && oldStatus != StatusFailed {
		s.doc.Counters.FailedRequests++
	}
}

// Get returns a copy of the record matching the id or reference id.
func (s *Store) Get(idOrRef string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.locate(idOrRef)
	if rec == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, idOrRef)
	}
	return *rec, nil
}

// ListForUser returns the user's records newest-first, bounded by limit.
func (s *Store) ListForUser(userID int64, limit int) []Record {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	var records []Record
	for _, rec := range s.doc.Transactions {
		if rec.UserID == userID {
			records = append(records, rec)
		}
	}
	for _, rec := range s.doc.Deposits {
		if rec.UserID == userID {
			records = append(records, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Stats returns the aggregate counters plus derived counts computed over
// the live record set.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Counters:  s.doc.Counters,
		Transfers: len(s.doc.Transactions),
		Deposits:  len(s.doc.Deposits),
		Users:     len(s.doc.Users),
	}
	stats.TotalRecords = stats.Transfers + stats.Deposits
	for _, rec := range s.doc.Transactions {
		if rec.Status == StatusPending {
			stats.Pending++
		}
	}
	for _, rec := range s.doc.Deposits {
		if rec.Status == StatusPending {
			stats.Pending++
		}
	}
	return stats
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Settings
}

// UpdateSettings applies fn to the settings and persists the document.
func (s *Store) UpdateSettings(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	fn(&s.doc.Settings)
	updated := s.doc.Settings
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return updated, err
	}
	return updated, nil
}

// Flush persists the current document. Used at shutdown.
func (s *Store) Flush() error {
	return s.save()
}

// save writes the whole document with write-then-replace semantics: the
// previous file is snapshotted to the backup directory, the new content
// goes to a temp file and is renamed over the journal path. In-memory
// state stays authoritative when the write fails.
func (s *Store) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.snapshotLocked()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure journal dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.countSave("error")
		return fmt.Errorf("write journal temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.countSave("error")
		return fmt.Errorf("replace journal file: %w", err)
	}
	s.countSave("ok")
	return nil
}

func (s *Store) countSave(status string) {
	if s.metrics != nil {
		s.metrics.JournalSaves.WithLabelValues(status).Inc()
	}
}

// snapshotLocked copies the current on-disk journal into the backup dir
// with a timestamped name and prunes snapshots beyond the retention count.
// Caller must hold mu. Snapshot failures are logged, never fatal.
func (s *Store) snapshotLocked() {
	if s.backupDir == "" {
		return
	}
	prev, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read journal for snapshot failed", "error", err)
		}
		return
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		s.logger.Warn("ensure backup dir failed", "error", err)
		return
	}

	now := s.now()
	name := fmt.Sprintf("journal-%s-%06d.json", now.Format("20060102-150405"), now.UnixNano()%1000000)
	if err := os.WriteFile(filepath.Join(s.backupDir, name), prev, 0o644); err != nil {
		s.logger.Warn("write journal snapshot failed", "error", err)
		return
	}
	s.doc.Counters.LastBackup = now
	s.pruneSnapshots()
}

func (s *Store) pruneSnapshots() {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		s.logger.Warn("list backup dir failed", "error", err)
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= s.backupKeep {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.backupKeep] {
		if err := os.Remove(filepath.Join(s.backupDir, name)); err != nil {
			s.logger.Warn("prune snapshot failed", "file", name, "error", err)
		}
	}
}
