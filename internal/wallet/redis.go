package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_USER_BALANCE = "crash:balance:"
	REDIS_KEY_CREDIT       = "crash:credit:"

	creditMarkerTTL = 24 * time.Hour
)

// debitScript checks and decrements in one step so two bets cannot both
// pass a stale balance check.
var debitScript = redis.NewScript(`
local bal = redis.call('GET', KEYS[1])
if not bal then
  return {-1, '0'}
end
if tonumber(bal) < tonumber(ARGV[1]) then
  return {0, bal}
end
return {1, redis.call('INCRBYFLOAT', KEYS[1], '-' .. ARGV[1])}
`)

// creditScript applies a credit once per marker key.
var creditScript = redis.NewScript(`
if redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[2]) then
  return {1, redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])}
end
return {0, redis.call('GET', KEYS[1]) or '0'}
`)

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Balance(ctx context.Context, userID string) (float64, error) {
	bal, err := r.client.Get(ctx, REDIS_KEY_USER_BALANCE+userID).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

func (r *Redis) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	res, err := debitScript.Run(ctx, r.client,
		[]string{REDIS_KEY_USER_BALANCE + userID},
		formatAmount(amount),
	).Slice()
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}

	status, bal, err := parseScriptResult(res)
	if err != nil {
		return 0, fmt.Errorf("debit: %w", err)
	}
	switch status {
	case -1:
		return 0, ErrAccountNotFound
	case 0:
		return bal, ErrInsufficientFunds
	}
	return bal, nil
}

func (r *Redis) Credit(ctx context.Context, c Credit) (float64, error) {
	res, err := creditScript.Run(ctx, r.client,
		[]string{REDIS_KEY_USER_BALANCE + c.UserID, REDIS_KEY_CREDIT + c.Key()},
		formatAmount(c.Amount),
		int(creditMarkerTTL.Seconds()),
	).Slice()
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	_, bal, err := parseScriptResult(res)
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}
	return bal, nil
}

// SetBalance overwrites a balance. Used to seed accounts.
func (r *Redis) SetBalance(ctx context.Context, userID string, balance float64) error {
	return r.client.Set(ctx, REDIS_KEY_USER_BALANCE+userID, formatAmount(balance), 0).Err()
}

func parseScriptResult(res []interface{}) (int64, float64, error) {
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply %v", res)
	}
	status, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected status %v", res[0])
	}
	raw, ok := res[1].(string)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected balance %v", res[1])
	}
	bal, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, 0, err
	}
	return status, bal, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
