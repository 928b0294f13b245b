package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func cursorKey(accountID, channelKey string) string {
	return fmt.Sprintf("termwatch/cursor/%s/%s", accountID, channelKey)
}

// readCursor restores a persisted poll cursor. Without redis configured it
// just reports zero, and the poller starts from the present.
func (m *Monitor) readCursor(ctx context.Context, accountID, channelKey string) (int64, error) {
	if m.redis == nil {
		return 0, nil
	}
	val, err := m.redis.Get(ctx, cursorKey(accountID, channelKey)).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return val, nil
}

func (m *Monitor) persistCursor(ctx context.Context, accountID, channelKey string, cursor int64) error {
	if m.redis == nil || cursor <= 0 {
		return nil
	}
	return m.redis.Set(ctx, cursorKey(accountID, channelKey), cursor, 14*24*time.Hour).Err()
}
