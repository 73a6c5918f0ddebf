package redis

import (
	"context"
	"fmt"
	"time"

	"atlas-air/internal/logger"

	"github.com/go-redis/redis/v8"
)

const defaultLockTTL = 10 * time.Second

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis holds short per-seat locks around reservation creation so that two
// instances never write the same (flight, seat) at once.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Redis{
		Client: client,
		TTL:    ttl,
		Logger: log,
	}
}

func SeatLockKey(flightID, seatID int64) string {
	return fmt.Sprintf("seat_lock:%d:%d", flightID, seatID)
}

// IsSeatLocked checks the lock without taking it.
func (r *Redis) IsSeatLocked(ctx context.Context, flightID, seatID int64) (bool, error) {
	n, err := r.Client.Exists(ctx, SeatLockKey(flightID, seatID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LockSeat takes the lock for owner. It returns false when someone else holds it.
func (r *Redis) LockSeat(ctx context.Context, flightID, seatID int64, owner string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, SeatLockKey(flightID, seatID), owner, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock seat: %w", err)
	}
	if !ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("Seat %d on flight %d already locked", seatID, flightID))
	}
	return ok, nil
}

// UnlockSeat releases the lock if owner still holds it. An expired or
// foreign lock is left alone.
func (r *Redis) UnlockSeat(ctx context.Context, flightID, seatID int64, owner string) error {
	if err := unlockScript.Run(ctx, r.Client, []string{SeatLockKey(flightID, seatID)}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("unlock seat: %w", err)
	}
	return nil
}
