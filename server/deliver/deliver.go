package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/redis/go-redis/v9"
)

// Names of the two Redis channels that downstream consumers read.
// detection_queue is an ordered list for durable processing (LPUSH);
// live_events is a fan-out pub/sub channel for real-time subscribers.
const (
	QueueName     = "detection_queue"
	BroadcastName = "live_events"
)

// Deliverer sends payloads downstream. The primary path is Redis: every
// payload is pushed onto the reliable queue AND published on the broadcast
// channel. If Redis is not configured, or a Redis attempt errors, we make a
// single best-effort HTTP POST to the fallback endpoint. Delivery failures
// are logged and the payload is dropped; the pipeline never stalls on us.
type Deliverer struct {
	log         logs.Log
	redis       *redis.Client // nil when Redis is not configured
	fallbackURL string        // empty when no fallback endpoint is configured
	client      *http.Client
}

func NewDeliverer(log logs.Log, redisAddr, fallbackURL string, httpTimeout time.Duration) *Deliverer {
	d := &Deliverer{
		log:         log,
		fallbackURL: fallbackURL,
		client: &http.Client{
			Timeout: httpTimeout,
		},
	}
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:        redisAddr,
			DialTimeout: 5 * time.Second,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			// Not fatal. The connection may come back; every Deliver retries
			// the transport, and the fallback covers us meanwhile.
			log.Warnf("Redis at %v is not reachable (%v). Falling back to HTTP delivery", redisAddr, err)
		} else {
			log.Infof("Connected to Redis at %v", redisAddr)
		}
		d.redis = client
	}
	return d
}

// Deliver makes one delivery attempt for one payload.
// Returns an error purely for the caller's accounting; the error has already
// been logged and must not be retried.
func (d *Deliverer) Deliver(payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Errorf("Failed to serialize payload: %v", err)
		return err
	}
	if d.redis != nil {
		if err := d.deliverRedis(body); err == nil {
			return nil
		} else {
			d.log.Warnf("Redis delivery failed: %v. Trying HTTP fallback", err)
		}
	}
	return d.deliverHTTP(body)
}

// Push onto the queue and publish to the broadcast channel. Both are
// attempted; either failing makes the whole Redis attempt a failure, so the
// fallback gets a chance at the payload.
func (d *Deliverer) deliverRedis(body []byte) error {
	ctx := context.Background()
	var firstErr error
	if err := d.redis.LPush(ctx, QueueName, body).Err(); err != nil {
		firstErr = fmt.Errorf("LPUSH %v: %w", QueueName, err)
	}
	if err := d.redis.Publish(ctx, BroadcastName, body).Err(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("PUBLISH %v: %w", BroadcastName, err)
	}
	return firstErr
}

// Single POST, at most once, short timeout. Any non-2xx or transport error
// is a logged delivery failure.
func (d *Deliverer) deliverHTTP(body []byte) error {
	if d.fallbackURL == "" {
		err := fmt.Errorf("No fallback endpoint configured")
		d.log.Warnf("Dropping payload: %v", err)
		return err
	}
	req, err := http.NewRequest("POST", d.fallbackURL, bytes.NewReader(body))
	if err != nil {
		d.log.Errorf("Failed to build fallback request: %v", err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Errorf("Fallback POST to %v failed: %v", d.fallbackURL, err)
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("Fallback POST returned %v", resp.Status)
		d.log.Errorf("%v", err)
		return err
	}
	return nil
}

func (d *Deliverer) Close() {
	if d.redis != nil {
		d.redis.Close()
	}
	d.client.CloseIdleConnections()
}

// Redis returns the shared Redis client, or nil when Redis is not
// configured. The heartbeat reporter rides on the same connection.
func (d *Deliverer) Redis() *redis.Client {
	return d.redis
}
