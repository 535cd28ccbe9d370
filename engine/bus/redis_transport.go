package bus

import (
	"context"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/pkg/errors"
)

// RedisTransport publishes and subscribes through redis pub/sub
type RedisTransport struct {
	pool *redis.Pool
}

// NewRedisPool creates a redigo pool for addr
func NewRedisPool(addr string, password string, db int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     consts.REDIS_MAX_IDLE,
		IdleTimeout: consts.REDIS_IDLE_TIMEOUT,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialPassword(password),
				redis.DialDatabase(db),
				redis.DialConnectTimeout(consts.REDIS_DIAL_TIMEOUT),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisTransport creates a transport using the redis server at addr
func NewRedisTransport(addr string, password string, db int) *RedisTransport {
	return &RedisTransport{pool: NewRedisPool(addr, password, db)}
}

// NewRedisTransportWithPool creates a transport sharing an existing pool
func NewRedisTransportWithPool(pool *redis.Pool) *RedisTransport {
	return &RedisTransport{pool: pool}
}

// Publish sends payload with PUBLISH on a pooled connection
func (t *RedisTransport) Publish(topic string, payload []byte) error {
	c := t.pool.Get()
	defer c.Close()
	_, err := c.Do("PUBLISH", topic, payload)
	return err
}

// Listen subscribes a dedicated connection to topic. The connection is closed when ctx is
// cancelled, which unblocks the receive loop.
func (t *RedisTransport) Listen(ctx context.Context, topic string, deliver func([]byte)) error {
	c, err := t.pool.Dial()
	if err != nil {
		return errors.Wrap(err, "redis dial failed")
	}
	psc := redis.PubSubConn{Conn: c}
	if err := psc.Subscribe(topic); err != nil {
		c.Close()
		return errors.Wrapf(err, "redis subscribe %s failed", topic)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
			c.Close()
		}
	}()

	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			deliver(v.Data)
		case redis.Subscription:
			nslog.Debugf("redis: %s %s (%d)", v.Kind, v.Channel, v.Count)
		case error:
			if ctx.Err() != nil {
				return nil
			}
			return v
		}
	}
}

// Close closes the connection pool
func (t *RedisTransport) Close() error {
	return t.pool.Close()
}
