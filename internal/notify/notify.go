package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Event announces that a document in a collection changed. Delivery is
// best-effort push on top of the durable store; consumers that miss events
// fall back to their periodic re-query.
type Event struct {
	Collection string `json:"collection"` // "checkpoints" or "checkpoint_verifications"
	ID         string `json:"id"`
	CompanyID  string `json:"company_id"`
	Kind       string `json:"kind"` // "created", "updated", "deleted"
}

// Notifier publishes and subscribes to change events over Redis pub/sub,
// partitioned per company channel.
type Notifier struct {
	client *redis.Client
}

// New creates a notifier.
func New(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func channel(companyID string) string {
	return "patrol:changes:" + companyID
}

// Publish announces a change. Failures are logged, not propagated: the write
// to the store already succeeded and subscribers re-query on a cadence
// anyway.
func (n *Notifier) Publish(ctx context.Context, evt Event) {
	if n == nil || n.client == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("notify marshal failed: %v", err)
		return
	}
	if err := n.client.Publish(ctx, channel(evt.CompanyID), payload).Err(); err != nil {
		log.Printf("notify publish failed: %v", err)
	}
}

// Subscribe streams change events for one company until ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, companyID string) (<-chan Event, func()) {
	sub := n.client.Subscribe(ctx, channel(companyID))
	out := make(chan Event)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Printf("notify decode failed: %v", err)
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
