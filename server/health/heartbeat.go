// Package health publishes worker liveness to Redis so that fleet
// supervisors can tell a dead worker from a quiet one.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "heartbeat:detector:"

// Reporter writes a heartbeat key on a fixed interval, and deletes it on
// shutdown so consumers see a clean exit rather than a stale timestamp
// aging out.
type Reporter struct {
	// ShutdownComplete is closed once the heartbeat key has been removed
	ShutdownComplete chan bool

	log      logs.Log
	client   *redis.Client
	key      string
	interval time.Duration
	shutdown chan bool
}

// NewReporter starts heartbeating immediately. The caller signals shutdown
// by closing the shutdown channel, then waits on ShutdownComplete.
func NewReporter(log logs.Log, client *redis.Client, cameraID string, interval time.Duration, shutdown chan bool) *Reporter {
	r := &Reporter{
		ShutdownComplete: make(chan bool),
		log:              log,
		client:           client,
		key:              keyPrefix + cameraID,
		interval:         interval,
		shutdown:         shutdown,
	}
	go r.run()
	return r
}

func (r *Reporter) run() {
	defer close(r.ShutdownComplete)
	r.beat()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.shutdown:
			r.remove()
			return
		case <-ticker.C:
			r.beat()
		}
	}
}

func (r *Reporter) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	val := fmt.Sprintf("%v", time.Now().UnixMilli())
	if err := r.client.Set(ctx, r.key, val, 0).Err(); err != nil {
		r.log.Warnf("Failed to write heartbeat %v: %v", r.key, err)
	}
}

func (r *Reporter) remove() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		r.log.Warnf("Failed to remove heartbeat %v: %v", r.key, err)
		return
	}
	r.log.Infof("Heartbeat %v removed", r.key)
}
