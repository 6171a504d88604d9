package mqtt

import (
	"fmt"
)

// Subscribe starts delivering messages on topic to handler.
//
// The topic may carry wildcards, e.g. "tele/+/SENSOR" for every Tasmota
// bridge. Messages reach the handler one at a time in arrival order, so a
// slow handler stalls the whole feed.
//
// The subscription is remembered and re-sent to the broker after every
// reconnect. A failed subscribe is forgotten again so HasSubscription
// stays false and the caller can retry on the next connect.
//
// Parameters:
//   - topic: Topic filter
//   - qos: Requested QoS (0, 1 or 2)
//   - handler: Receives topic and raw payload
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %q", ErrSubscribeFailed, topic)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		c.forget(topic)
		return fmt.Errorf("%w: %q not acknowledged within %v", ErrSubscribeFailed, topic, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topic)
		return fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// forget drops topic from the set restored on reconnect.
func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// HasSubscription reports whether topic is subscribed. Only the exact
// filter string is compared.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}
