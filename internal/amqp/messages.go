package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"cuentas/internal/core"
)

// EventType says what happened to the entity.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Entity names the kind of ledger record an event refers to.
type Entity string

const (
	EntityAccount     Entity = "account"
	EntityTransaction Entity = "transaction"
)

// LedgerEvent announces a committed ledger mutation. Created and updated events
// carry the record as it was committed; deleted events carry only the id.
type LedgerEvent struct {
	Type        EventType         `json:"type"`
	Entity      Entity            `json:"entity"`
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Account     *core.Account     `json:"account,omitempty"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

func NewAccountEvent(typ EventType, a core.Account) *LedgerEvent {
	ev := &LedgerEvent{Type: typ, Entity: EntityAccount, ID: a.ID, Timestamp: time.Now()}
	if typ != EventDeleted {
		ev.Account = &a
	}
	return ev
}

func NewTransactionEvent(typ EventType, t core.Transaction) *LedgerEvent {
	ev := &LedgerEvent{Type: typ, Entity: EntityTransaction, ID: t.ID, Timestamp: time.Now()}
	if typ != EventDeleted {
		ev.Transaction = &t
	}
	return ev
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and sanity-checks an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.ID == "" {
		return nil, errors.New("ledger event without id")
	}
	switch ev.Entity {
	case EntityAccount, EntityTransaction:
	default:
		return nil, errors.New("ledger event with unknown entity " + string(ev.Entity))
	}
	return &ev, nil
}
