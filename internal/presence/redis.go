package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/callroom/config"
	"github.com/redis/go-redis/v9"
)

const (
	roomTTL       = 24 * time.Hour
	updateTimeout = 2 * time.Second
	queueSize     = 1024
)

type update struct {
	roomID string
	peerID string
	joined bool
}

// Redis mirrors room membership into "room:<id>:peers" sets. Updates are
// queued and applied by Run so signaling never waits on the network.
type Redis struct {
	client  *redis.Client
	updates chan update
	logger  *slog.Logger
}

// Connect opens a client and checks the connection with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:  client,
		updates: make(chan update, queueSize),
		logger:  logger,
	}
}

func (r *Redis) Joined(roomID, peerID string) {
	r.enqueue(update{roomID: roomID, peerID: peerID, joined: true})
}

func (r *Redis) Left(roomID, peerID string) {
	r.enqueue(update{roomID: roomID, peerID: peerID})
}

func (r *Redis) enqueue(u update) {
	select {
	case r.updates <- u:
	default:
		r.logger.Warn("presence queue full, dropping update", "room", u.roomID, "peer", u.peerID)
	}
}

// Run applies queued updates until ctx is done.
func (r *Redis) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-r.updates:
			if err := r.apply(ctx, u); err != nil {
				r.logger.Warn("presence update failed", "room", u.roomID, "peer", u.peerID, "error", err)
			}
		}
	}
}

func (r *Redis) apply(ctx context.Context, u update) error {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	key := roomKey(u.roomID)
	if !u.joined {
		return r.client.SRem(ctx, key, u.peerID).Err()
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, u.peerID)
	pipe.Expire(ctx, key, roomTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Count returns the mirrored size of a room.
func (r *Redis) Count(ctx context.Context, roomID string) (int64, error) {
	return r.client.SCard(ctx, roomKey(roomID)).Result()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
