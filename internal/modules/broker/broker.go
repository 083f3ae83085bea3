package broker

import (
	"context"
	"errors"

	"github.com/aristath/insider-trader/internal/domain"
)

// Rejection reasons
var (
	ErrNotConnected      = errors.New("broker not connected")
	ErrInsufficientCash  = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrUnknownOrder      = errors.New("unknown order")
)

// Holding is one aggregate broker position
type Holding struct {
	Symbol  string  `json:"symbol"`
	Qty     int     `json:"qty"`
	AvgCost float64 `json:"avg_cost"`
}

// Broker is the execution surface the engine trades through
type Broker interface {
	Connect() error
	Disconnect() error
	IsConnected() bool

	AccountValue(ctx context.Context) (float64, error)
	CashBalance() (float64, error)
	Positions() ([]Holding, error)
	Position(symbol string) (*Holding, error)

	// SubmitOrder executes or rejects the order, recording fill price,
	// commission and status on the order itself.
	SubmitOrder(ctx context.Context, order *domain.Order) error
	CancelOrder(orderID string) error
	OrderStatus(orderID string) (domain.OrderStatus, error)

	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}
