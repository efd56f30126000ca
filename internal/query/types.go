package query

import "time"

// PolicyResponse represents a policy for API queries.
type PolicyResponse struct {
	PolicyID     uint64    `json:"policy_id"`
	Holder       string    `json:"holder"`
	FlightID     string    `json:"flight_id"`
	Departure    time.Time `json:"departure"`
	PremiumPaid  int64     `json:"premium_paid"`
	MaxPayout    int64     `json:"max_payout"`
	Status       string    `json:"status"`
	DelayHours   int64     `json:"delay_hours"`
	PayoutAmount int64     `json:"payout_amount"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// FlightReportResponse represents a stored flight report for API queries.
type FlightReportResponse struct {
	FlightID     string    `json:"flight_id"`
	DayBucket    int64     `json:"day_bucket"`
	ReportKey    string    `json:"report_key"`
	Status       string    `json:"status"`
	DelayMinutes int64     `json:"delay_minutes"`
	ReportedAt   time.Time `json:"reported_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// ReserveStatsResponse represents the reserve pool state for API queries.
type ReserveStatsResponse struct {
	ReserveBalance int64 `json:"reserve_balance"`

	// Lifetime totals derived from the external boundary accounts
	LifetimePremiums    int64 `json:"lifetime_premiums"`
	LifetimePayouts     int64 `json:"lifetime_payouts"`
	LifetimeRefunds     int64 `json:"lifetime_refunds"`
	LifetimeFunding     int64 `json:"lifetime_funding"`
	LifetimeWithdrawals int64 `json:"lifetime_withdrawals"`

	// Derived at query time from active policies
	OutstandingExposure int64 `json:"outstanding_exposure"`
	ActivePolicies      int64 `json:"active_policies"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OpRef         string `json:"op_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	PolicyID      int64  `json:"policy_id"`
	Party         string `json:"party"`
	Timestamp     int64  `json:"timestamp"`
}

// ParamsResponse represents the parameters in force.
type ParamsResponse struct {
	MinPremium       int64 `json:"min_premium"`
	MaxPremium       int64 `json:"max_premium"`
	PayoutMultiplier int64 `json:"payout_multiplier"`
	MinLeadTimeSecs  int64 `json:"min_lead_time_secs"`
	AsOfSequence     int64 `json:"as_of_sequence"`
}

// TierResponse is one row of the payout tier table.
type TierResponse struct {
	MinDelayHours int64 `json:"min_delay_hours"`
	PayoutBps     int64 `json:"payout_bps"`
}

// TiersResponse represents the payout tier table in force.
type TiersResponse struct {
	Tiers        []TierResponse `json:"tiers"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// OracleResponse describes one reporter's authorization state.
type OracleResponse struct {
	Oracle       string    `json:"oracle"`
	Authorized   bool      `json:"authorized"`
	UpdatedAt    time.Time `json:"updated_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// OraclesResponse lists every reporter the ledger has seen an
// authorization decision for, revoked ones included.
type OraclesResponse struct {
	Oracles      []OracleResponse `json:"oracles"`
	AsOfSequence int64            `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	GlobalImbalance int64   `json:"global_imbalance"`
}
