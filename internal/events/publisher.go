package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const DefaultChannel = "ledger_events"

const (
	EventAccountCreated      = "account.created"
	EventAccountStatusChange = "account.status_changed"
	EventDepositCompleted    = "deposit.completed"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventTransferCompleted   = "transfer.completed"
)

// LedgerEvent is published after a ledger change has committed.
type LedgerEvent struct {
	EventType     string          `json:"event_type"`
	UserID        string          `json:"user_id"`
	AccountID     string          `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	FromAccount   string          `json:"from_account,omitempty"`
	ToAccount     string          `json:"to_account,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        string          `json:"status,omitempty"`
	RecordIDs     []string        `json:"record_ids,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event *LedgerEvent) error
}

// redisPublisher is the subset of *redis.Client the publisher needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisPublisher struct {
	rdb     redisPublisher
	channel string
	now     func() time.Time
}

func NewRedisPublisher(rdb redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel, now: time.Now}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *LedgerEvent) error {
	event.Timestamp = p.now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NoopPublisher drops events. Used when no Redis address is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *LedgerEvent) error { return nil }
