package notify

import (
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"
)

// client wraps a NATS connection, trimmed from the pack's general-purpose
// wrapper down to what the bus needs: publish and subscribe.
type client struct {
	conn *nc.Conn
}

func newClient(url string) (*client, error) {
	conn, err := nc.Connect(url,
		nc.ReconnectWait(time.Second),
		nc.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to notify bus: %w", err)
	}
	return &client{conn: conn}, nil
}

func (c *client) publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

func (c *client) subscribe(subject string, handler func([]byte)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

func (c *client) close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
