package domain

import "time"

// Signal sources
const (
	SourceForm4    = "form4"
	SourceCongress = "congress"
)

// Trade directions
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// SignalStatus represents the lifecycle state of a signal
type SignalStatus string

const (
	SignalPending  SignalStatus = "PENDING"
	SignalActive   SignalStatus = "ACTIVE"
	SignalRejected SignalStatus = "REJECTED"
	SignalExpired  SignalStatus = "EXPIRED"
)

// Tier is a conviction tier assigned by the scorer
type Tier string

const (
	TierS      Tier = "S"
	TierA      Tier = "A"
	TierB      Tier = "B"
	TierC      Tier = "C"
	TierReject Tier = "REJECT"
)

// Value returns the ordinal rank of a tier (higher is stronger)
func (t Tier) Value() int {
	switch t {
	case TierS:
		return 4
	case TierA:
		return 3
	case TierB:
		return 2
	case TierC:
		return 1
	default:
		return 0
	}
}

// Signal represents a scored insider-activity signal
type Signal struct {
	SignalID         string       `json:"signal_id"`
	Symbol           string       `json:"symbol"`
	Source           string       `json:"source"`
	Direction        string       `json:"direction"`
	FilerName        string       `json:"filer_name"`
	FilerRole        string       `json:"filer_role,omitempty"`
	TransactionDate  *time.Time   `json:"transaction_date,omitempty"`
	FilingDate       *time.Time   `json:"filing_date,omitempty"`
	TransactionValue float64      `json:"transaction_value"`
	Price            float64      `json:"price"`
	RecencyScore     float64      `json:"recency_score"`
	SizeScore        float64      `json:"size_score"`
	CompetenceScore  float64      `json:"competence_score"`
	ConsensusScore   float64      `json:"consensus_score"`
	RegimeScore      float64      `json:"regime_score"`
	TotalScore       float64      `json:"total_score"`
	ConvictionTier   Tier         `json:"conviction_tier,omitempty"`
	Status           SignalStatus `json:"status"`
	RejectionReason  string       `json:"rejection_reason,omitempty"`
	PersistedCycles  int          `json:"persisted_cycles"`
	CycleID          string       `json:"cycle_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// PositionStatus represents the lifecycle state of a position
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Close reasons recorded on exits
const (
	CloseReallocation = "REALLOCATION"
	CloseEmergency    = "EMERGENCY_LIQUIDATION"
	CloseEscalation   = "TIER_ESCALATION_CONFIRMED"
	CloseForced       = "FORCE_CLOSE"
	CloseExpiry       = "ROUND_EXPIRY"
	CloseStagnant     = "STAGNANT_POSITION"
	CloseSettlement   = "CYCLE_SETTLEMENT"
	CloseStopLoss     = "STOP_LOSS"
)

// Position represents an open or closed paper position
type Position struct {
	PositionID     string         `json:"position_id"`
	Symbol         string         `json:"symbol"`
	Direction      string         `json:"direction"`
	EntryDate      time.Time      `json:"entry_date"`
	EntryPrice     float64        `json:"entry_price"`
	Shares         int            `json:"shares"`
	EntryValue     float64        `json:"entry_value"`
	CurrentPrice   float64        `json:"current_price,omitempty"`
	UnrealizedPnL  float64        `json:"unrealized_pnl,omitempty"`
	ConvictionTier Tier           `json:"conviction_tier,omitempty"`
	CycleID        string         `json:"cycle_id,omitempty"`
	Scenario       string         `json:"scenario,omitempty"`
	Status         PositionStatus `json:"status"`
	StopPrice      float64        `json:"stop_price,omitempty"`
	ExitDate       *time.Time     `json:"exit_date,omitempty"`
	ExitPrice      float64        `json:"exit_price,omitempty"`
	RealizedPnL    float64        `json:"realized_pnl,omitempty"`
	CloseReason    string         `json:"close_reason,omitempty"`
	RoundStart     *time.Time     `json:"round_start,omitempty"`
	RoundExpiry    *time.Time     `json:"round_expiry,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// MarketValue returns the current market value, falling back to entry value
func (p Position) MarketValue() float64 {
	if p.CurrentPrice > 0 {
		return float64(p.Shares) * p.CurrentPrice
	}
	return p.EntryValue
}

// ReturnPct returns the unrealized return as a fraction of entry value
func (p Position) ReturnPct() float64 {
	if p.EntryValue == 0 {
		return 0
	}
	return (p.MarketValue() - p.EntryValue) / p.EntryValue
}

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the execution type of an order
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderNew       OrderStatus = "NEW"
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order represents a broker order
type Order struct {
	OrderID        string      `json:"order_id"`
	PositionID     string      `json:"position_id,omitempty"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            int         `json:"qty"`
	LimitPrice     float64     `json:"limit_price,omitempty"`
	Status         OrderStatus `json:"status"`
	FilledAvgPrice float64     `json:"filled_avg_price,omitempty"`
	Commission     float64     `json:"commission,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Scenario       string      `json:"scenario,omitempty"`
	RejectReason   string      `json:"reject_reason,omitempty"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
}

// Phase is a stage in the cycle lifecycle, derived from the day in cycle
type Phase string

const (
	PhaseLoad       Phase = "LOAD"
	PhaseActive     Phase = "ACTIVE"
	PhaseScaleOut   Phase = "SCALE_OUT"
	PhaseForceClose Phase = "FORCE_CLOSE"
)

// Gate is a risk gate derived from portfolio drawdown
type Gate string

const (
	GateGreen   Gate = "GREEN"
	GateYellow  Gate = "YELLOW"
	GateRed     Gate = "RED"
	GateNuclear Gate = "NUCLEAR"
)

// AllowsEntries reports whether new positions may be opened under this gate
func (g Gate) AllowsEntries() bool {
	return g == GateGreen || g == GateYellow
}

// CycleStatus represents the lifecycle state of a cycle
type CycleStatus string

const (
	CycleActive    CycleStatus = "ACTIVE"
	CycleCompleted CycleStatus = "COMPLETED"
	CycleEmergency CycleStatus = "EMERGENCY"
)

// Cycle completion reasons
const (
	CompletionDuration  = "DURATION_ELAPSED"
	CompletionEmergency = "EMERGENCY"
	CompletionAllClosed = "ALL_CLOSED"
	CompletionManual    = "MANUAL"
)

// Cycle represents one time-boxed trading cycle
type Cycle struct {
	CycleID          string      `json:"cycle_id"`
	StartDate        time.Time   `json:"start_date"`
	DurationDays     int         `json:"duration_days"`
	Status           CycleStatus `json:"status"`
	OriginalCapital  float64     `json:"original_capital"`
	WorkingCapital   float64     `json:"working_capital"`
	RealizedPnL      float64     `json:"realized_pnl"`
	WithdrawnAmount  float64     `json:"withdrawn_amount"`
	ReturnPct        float64     `json:"return_pct"`
	SharpeRatio      *float64    `json:"sharpe_ratio,omitempty"`
	WinRate          float64     `json:"win_rate"`
	AvgWinner        float64     `json:"avg_winner"`
	AvgLoser         float64     `json:"avg_loser"`
	PositionsOpened  int         `json:"positions_opened"`
	PositionsClosed  int         `json:"positions_closed"`
	CompletionReason string      `json:"completion_reason,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// CycleState is one end-of-day record of where a cycle stands
type CycleState struct {
	ID             int64     `json:"id,omitempty"`
	CycleID        string    `json:"cycle_id"`
	Day            int       `json:"day"`
	Phase          Phase     `json:"phase"`
	Gate           Gate      `json:"gate"`
	OpenPositions  int       `json:"open_positions"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	TakenAt        time.Time `json:"taken_at"`
}

// AllocationDecision is one sized entry produced by the allocator
type AllocationDecision struct {
	ID             int64     `json:"id,omitempty"`
	CycleID        string    `json:"cycle_id"`
	Scenario       string    `json:"scenario,omitempty"`
	SignalID       string    `json:"signal_id"`
	Symbol         string    `json:"symbol"`
	Direction      string    `json:"direction"`
	ConvictionTier Tier      `json:"conviction_tier"`
	Shares         int       `json:"shares"`
	TargetPrice    float64   `json:"target_price"`
	SlotValue      float64   `json:"slot_value"`
	ClusterSize    int       `json:"cluster_size,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FilerStats tracks the historical hit rate of a filer
type FilerStats struct {
	FilerName string    `json:"filer_name"`
	Source    string    `json:"source"`
	Trades    int       `json:"trades"`
	Wins      int       `json:"wins"`
	WinRate   float64   `json:"win_rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhilosophyState is the persisted discipline state for one account
type PhilosophyState struct {
	Scenario         string     `json:"scenario"`
	Preset           string     `json:"preset"`
	AllocationPower  float64    `json:"allocation_power"`
	CleanRounds      int        `json:"clean_rounds"`
	TotalPenalty     float64    `json:"total_penalty"`
	LastViolation    string     `json:"last_violation,omitempty"`
	LastViolationAt  *time.Time `json:"last_violation_at,omitempty"`
	SaylorExtensions int        `json:"saylor_extensions"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ScenarioLive is the account name of the primary book. Sandbox accounts
// use their scenario name instead.
const ScenarioLive = "live"

// ScenarioState is the persisted aggregate for one scenario sandbox
type ScenarioState struct {
	Name           string    `json:"name"`
	Preset         string    `json:"preset"`
	Cash           float64   `json:"cash"`
	InitialCapital float64   `json:"initial_capital"`
	TotalPnL       float64   `json:"total_pnl"`
	ReturnPct      float64   `json:"return_pct"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AuditEntry is one link in the hash-chained audit log
type AuditEntry struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"`
	EntityID     string    `json:"entity_id"`
	AfterState   string    `json:"after_state"`
	EventHash    string    `json:"event_hash"`
	PreviousHash string    `json:"previous_hash,omitempty"`
}

// Quote is a bid/ask snapshot for a symbol
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid returns the quote midpoint, falling back to whichever side is set
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	if q.Bid > 0 {
		return q.Bid
	}
	return q.Ask
}

// Spread returns the bid/ask spread
func (q Quote) Spread() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return q.Ask - q.Bid
	}
	return 0
}

// Bar is one daily OHLCV bar
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume int64     `json:"v"`
}

// MarketSummary is the market-data snapshot used by filters and sizing
type MarketSummary struct {
	Symbol         string    `json:"symbol"`
	CurrentPrice   float64   `json:"current_price"`
	AvgVolumeUSD   float64   `json:"avg_volume_usd"`
	ATR            float64   `json:"atr"`
	BidAskSpread   float64   `json:"bid_ask_spread"`
	DaysToEarnings *int      `json:"days_to_earnings,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
