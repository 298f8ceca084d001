// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tendant/newscast/pkg/schema"
)

const DefaultSubject = "newscast.jobs"

// LifecycleSubject carries one event per stage transition.
func LifecycleSubject(base string) string { return base + ".lifecycle" }

// DoneSubject carries one summary per finished production.
func DoneSubject(base string) string { return base + ".done" }

type Client struct {
	nc      *nats.Conn
	subject string
}

func Connect(url, subject string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("newscast"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Client{nc: nc, subject: subject}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

// Connected reports whether the connection is currently usable.
func (c *Client) Connected() bool { return c.nc != nil && c.nc.IsConnected() }

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

func (c *Client) PublishLifecycle(_ context.Context, ev schema.LifecycleEvent) error {
	return c.PublishJSON(LifecycleSubject(c.subject), ev)
}

func (c *Client) PublishDone(_ context.Context, done schema.ProductionDone) error {
	return c.PublishJSON(DoneSubject(c.subject), done)
}

func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, msg.Data)
	})
}

// SubscribeLifecycle decodes lifecycle events for every job.
func (c *Client) SubscribeLifecycle(handler func(ctx context.Context, ev schema.LifecycleEvent)) (*nats.Subscription, error) {
	return c.SubscribeJSON(LifecycleSubject(c.subject), func(ctx context.Context, data []byte) {
		var ev schema.LifecycleEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		handler(ctx, ev)
	})
}

// SubscribeDone decodes production summaries.
func (c *Client) SubscribeDone(handler func(ctx context.Context, done schema.ProductionDone)) (*nats.Subscription, error) {
	return c.SubscribeJSON(DoneSubject(c.subject), func(ctx context.Context, data []byte) {
		var done schema.ProductionDone
		if err := json.Unmarshal(data, &done); err != nil {
			return
		}
		handler(ctx, done)
	})
}
