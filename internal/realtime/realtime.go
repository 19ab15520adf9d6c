// Package realtime delivers server-pushed events over NATS: new posts,
// follow-graph changes, and engagement counter patches.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/abelbrown/flick/internal/backend"
	"github.com/abelbrown/flick/internal/logging"
)

// Subjects the backend publishes on
const (
	SubjectPostCreated = "posts.created"
	SubjectCounters    = "posts.counters"
	SubjectFollows     = "social.follows"
)

// Conn wraps a NATS connection with typed subscriptions
type Conn struct {
	nc  *nats.Conn
	log *log.Logger
}

// Connect dials the realtime endpoint. Reconnects are handled by the
// NATS client itself; subscriptions survive them.
func Connect(url string) (*Conn, error) {
	logger := logging.WithPrefix("realtime")
	nc, err := nats.Connect(url,
		nats.Name("flick-client"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Conn{nc: nc, log: logger}, nil
}

// Connected reports whether the connection is currently up
func (c *Conn) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Close drains and closes the connection
func (c *Conn) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// SubscribePosts delivers item-creation events. Returns a disposer.
func (c *Conn) SubscribePosts(handler func(backend.PostRow)) (func(), error) {
	sub, err := c.nc.Subscribe(SubjectPostCreated, func(msg *nats.Msg) {
		var row backend.PostRow
		if err := json.Unmarshal(msg.Data, &row); err != nil {
			c.log.Error("invalid post event", "error", err)
			return
		}
		handler(row)
	})
	if err != nil {
		return nil, err
	}
	return c.unsubscriber(sub), nil
}

// SubscribeCounters delivers engagement counter patches
func (c *Conn) SubscribeCounters(handler func(backend.CounterPatch)) (func(), error) {
	sub, err := c.nc.Subscribe(SubjectCounters, func(msg *nats.Msg) {
		var patch backend.CounterPatch
		if err := json.Unmarshal(msg.Data, &patch); err != nil {
			c.log.Error("invalid counter event", "error", err)
			return
		}
		handler(patch)
	})
	if err != nil {
		return nil, err
	}
	return c.unsubscriber(sub), nil
}

// SubscribeFollows delivers social-graph change events
func (c *Conn) SubscribeFollows(handler func(backend.FollowEvent)) (func(), error) {
	sub, err := c.nc.Subscribe(SubjectFollows, func(msg *nats.Msg) {
		var ev backend.FollowEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.log.Error("invalid follow event", "error", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, err
	}
	return c.unsubscriber(sub), nil
}

func (c *Conn) unsubscriber(sub *nats.Subscription) func() {
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			c.log.Debug("unsubscribe failed", "subject", sub.Subject, "error", err)
		}
	}
}
