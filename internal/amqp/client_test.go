package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cuentas/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "ledger", queueName: "ledger_events"}

	if client.isCircuitOpen() {
		t.Fatal("circuit breaker should be closed initially")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit breaker should open after max failures")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset failures")
	}

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if client.isCircuitOpen() {
		t.Fatal("circuit should go half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatal("state should be half-open")
	}
}

func TestClient_PublishShortCircuits(t *testing.T) {
	client := &Client{exchangeName: "ledger", queueName: "ledger_events"}
	ev := NewTransactionEvent(EventDeleted, core.Transaction{ID: "t1"})

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	err := client.Publish(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}

	atomic.StoreInt32(&client.state, StateClosed)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.Publish(ctx, ev); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLedgerEventJSON(t *testing.T) {
	tx := core.Transaction{
		ID: "t1", Kind: core.Expense, Amount: 12.5, Currency: core.EUR,
		Date: core.NewDate(2024, 5, 3), Category: "Food", AccountID: "a1",
	}
	body, err := NewTransactionEvent(EventCreated, tx).ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	ev, err := LedgerEventFromJSON(body)
	if err != nil {
		t.Fatalf("LedgerEventFromJSON: %v", err)
	}
	if ev.Type != EventCreated || ev.Entity != EntityTransaction || ev.ID != "t1" {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
	if ev.Transaction == nil || ev.Transaction.Amount != 12.5 || ev.Transaction.Date.String() != "2024-05-03" {
		t.Fatalf("unexpected payload: %+v", ev.Transaction)
	}
}

func TestDeletedEventsCarryNoPayload(t *testing.T) {
	ev := NewAccountEvent(EventDeleted, core.Account{ID: "a1", Name: "A"})
	if ev.Account != nil {
		t.Fatalf("deleted event should not carry the account")
	}
}

func TestLedgerEventFromJSONRejectsInvalid(t *testing.T) {
	for _, body := range []string{
		`{"id": 12}`,
		`{"type":"created","entity":"account"}`,
		`{"type":"created","entity":"budget","id":"x"}`,
	} {
		if _, err := LedgerEventFromJSON([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	good, _ := NewAccountEvent(EventCreated, core.Account{ID: "a1"}).ToJSON()

	tests := []struct {
		name       string
		body       []byte
		handlerErr error
		want       fakeAck
	}{
		{"handled", good, nil, fakeAck{acked: true}},
		{"handler fails", good, errors.New("sheets down"), fakeAck{nacked: true, requeued: true}},
		{"bad body", []byte("{"), nil, fakeAck{nacked: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			settle(ctx, tt.body, ack, func(context.Context, *LedgerEvent) error { return tt.handlerErr })
			if *ack != tt.want {
				t.Fatalf("got %+v, want %+v", *ack, tt.want)
			}
		})
	}
}
