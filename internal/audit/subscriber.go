package audit

import (
	"context"
	"log"
	"sync"

	"github.com/telecare/platform/internal/shared/events"
	"github.com/telecare/platform/internal/shared/types"
)

// Subscriber records every domain event from the bus as an audit entry.
// A mutex serializes appends so the hash chain never forks under
// concurrent delivery.
type Subscriber struct {
	repo *Repository

	mu       sync.Mutex
	lastHash string
}

// NewSubscriber creates a bus subscriber feeding the audit log
func NewSubscriber(repo *Repository) *Subscriber {
	return &Subscriber{repo: repo}
}

// Start seeds the chain tail and subscribes to all domain events
func (s *Subscriber) Start(ctx context.Context, bus *events.Bus) error {
	lastHash, err := s.repo.LastHash(ctx)
	if err != nil {
		return err
	}
	s.lastHash = lastHash

	return bus.Subscribe(ctx, "*", s.handle)
}

func (s *Subscriber) handle(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resourceType, resourceID := resourceFromEvent(event)

	actorType := event.ActorRole
	if actorType == "" {
		actorType = "system"
	}

	changes, _ := event.Data.(map[string]any)

	entry := NewEntry(actorType, event.ActorID, event.Type, resourceType, resourceID, changes, s.lastHash)
	if err := s.repo.Append(ctx, entry); err != nil {
		log.Printf("failed to append audit entry for event %s: %v", event.ID, err)
		return err
	}

	s.lastHash = entry.Hash
	return nil
}

// resourceFromEvent pulls the resource identity out of the event payload
func resourceFromEvent(event events.Event) (string, *types.ID) {
	data, ok := event.Data.(map[string]any)
	if !ok {
		return event.Source, nil
	}

	for _, key := range []string{"consultation_id", "payment_id", "message_id"} {
		if raw, ok := data[key].(string); ok {
			if id, err := types.ParseID(raw); err == nil {
				resourceType := key[:len(key)-3] // trim _id
				return resourceType, &id
			}
		}
	}
	return event.Source, nil
}
