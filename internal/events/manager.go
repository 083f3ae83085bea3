package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	SignalIngested EventType = "SIGNAL_INGESTED"
	SignalScored   EventType = "SIGNAL_SCORED"
	SignalRejected EventType = "SIGNAL_REJECTED"
	SignalExpired  EventType = "SIGNAL_EXPIRED"

	CycleCreated   EventType = "CYCLE_CREATED"
	CycleCompleted EventType = "CYCLE_COMPLETED"
	CycleSettled   EventType = "CYCLE_SETTLED"
	PhaseChanged   EventType = "PHASE_CHANGED"
	GateChanged    EventType = "GATE_CHANGED"

	PositionOpened    EventType = "POSITION_OPENED"
	PositionClosed    EventType = "POSITION_CLOSED"
	PositionEscalated EventType = "POSITION_ESCALATED"
	OrderFilled       EventType = "ORDER_FILLED"
	OrderRejected     EventType = "ORDER_REJECTED"

	AllocationRun     EventType = "ALLOCATION_RUN"
	ScenariosExecuted EventType = "SCENARIOS_EXECUTED"
	PowerAdjusted     EventType = "ALLOCATION_POWER_ADJUSTED"
	BackupCreated     EventType = "BACKUP_CREATED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission, logging and fan-out to subscribers
type Manager struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:  log.With().Str("service", "events").Logger(),
		subs: make(map[int]chan Event),
	}
}

// Subscribe returns a channel receiving all future events and an
// unsubscribe function. Slow subscribers drop events rather than block
// the emitter.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	ch := make(chan Event, 64)
	m.subs[id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
