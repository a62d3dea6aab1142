package journal

import "time"

// Record kinds.
const (
	KindTransfer = "transfer"
	KindDeposit  = "deposit"
)

// Record statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one transfer or deposit entry. Records are append-only: they
// are never deleted, only their status and provider metadata change.
type Record struct {
	ID           string         `json:"id"`
	RefID        string         `json:"ref_id"`
	UserID       int64          `json:"user_id"`
	Kind         string         `json:"kind"`
	BankCode     string         `json:"bank_code,omitempty"`
	AccountNo    string         `json:"account_number,omitempty"`
	AccountName  string         `json:"account_name,omitempty"`
	Amount       int64          `json:"amount"`
	Fee          int64          `json:"fee"`
	Total        int64          `json:"total"`
	Status       string         `json:"status"`
	Note         string         `json:"note,omitempty"`
	ProviderMeta map[string]any `json:"provider_meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Counters are the aggregate system counters maintained alongside records.
type Counters struct {
	TotalRequests       int64     `json:"total_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	SuccessfulTransfers int64     `json:"successful_transfers"`
	SuccessfulDeposits  int64     `json:"successful_deposits"`
	TotalVolume         int64     `json:"total_volume"`
	LastStartup         time.Time `json:"last_startup"`
	LastBackup          time.Time `json:"last_backup"`
}

// Settings are the runtime-adjustable knobs persisted with the journal.
type Settings struct {
	MinDeposit int64   `json:"min_deposit"`
	MaxDeposit int64   `json:"max_deposit"`
	FeePercent float64 `json:"fee_percent"`
}

// UserInfo tracks users the bot has interacted with.
type UserInfo struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Stats combines live counters with values derived from the record set.
type Stats struct {
	Counters     Counters `json:"counters"`
	TotalRecords int      `json:"total_records"`
	Pending      int      `json:"pending"`
	Transfers    int      `json:"transfers"`
	Deposits     int      `json:"deposits"`
	Users        int      `json:"users"`
}

// document is the on-disk shape of the journal file. The whole document is
// read at startup and written whole on each save.
type document struct {
	Users        map[string]UserInfo `json:"users"`
	Transactions []Record            `json:"transactions"`
	Deposits     []Record            `json:"deposits"`
	Settings     Settings            `json:"settings"`
	Counters     Counters            `json:"counters"`
}
