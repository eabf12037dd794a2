package cart

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage is a Storage backed by a shared Redis slot, for carts that
// outlive a single session holder. Writes publish a change notification on a
// per-slot channel; every other holder of the same slot receives it through
// Changes. TTL-keyed: the slot expires after the configured idle window.
type RedisStorage struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration

	// id identifies this holder so its own published writes can be dropped
	// from the change feed.
	id string

	pubsub  *redis.PubSub
	changes chan []byte
}

// changeEnvelope is the pub/sub message wrapping a slot write.
type changeEnvelope struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// NewRedisStorage creates a Redis-backed slot for the given session and
// starts the change-feed listener. Callers must Close it when the session
// ends.
func NewRedisStorage(ctx context.Context, client *redis.Client, sessionID string, ttl time.Duration) (*RedisStorage, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	key := SlotKey + ":" + sessionID

	s := &RedisStorage{
		client:  client,
		key:     key,
		channel: key + ":changed",
		ttl:     ttl,
		id:      uuid.New().String(),
		changes: make(chan []byte, 8),
	}

	s.pubsub = client.Subscribe(ctx, s.channel)
	// Force the subscription to be established before returning so callers
	// never miss writes that happen right after construction.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return nil, errors.Wrap(err, "subscribe to slot channel")
	}
	go s.listen()

	return s, nil
}

func (s *RedisStorage) listen() {
	for msg := range s.pubsub.Channel() {
		var env changeEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			continue
		}
		if env.Origin == s.id {
			continue
		}
		select {
		case s.changes <- []byte(env.Data):
		default:
		}
	}
}

func (s *RedisStorage) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart slot")
	}
	return data, nil
}

func (s *RedisStorage) Store(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store cart slot")
	}
	return s.publish(ctx, data)
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "clear cart slot")
	}
	return s.publish(ctx, []byte("[]"))
}

func (s *RedisStorage) publish(ctx context.Context, data []byte) error {
	payload, err := json.Marshal(changeEnvelope{Origin: s.id, Data: data})
	if err != nil {
		return errors.Wrap(err, "marshal change envelope")
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return errors.Wrap(err, "publish slot change")
	}
	return nil
}

func (s *RedisStorage) Changes() <-chan []byte {
	return s.changes
}

// Close stops the change-feed listener. The underlying Redis client is owned
// by the caller and is not closed.
func (s *RedisStorage) Close() error {
	return s.pubsub.Close()
}
