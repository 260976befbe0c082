package chat

import (
	"testing"
	"time"

	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	consultationID := types.NewID()

	first, stopFirst := hub.Subscribe(consultationID)
	second, stopSecond := hub.Subscribe(consultationID)
	defer stopFirst()
	defer stopSecond()

	other, stopOther := hub.Subscribe(types.NewID())
	defer stopOther()

	msg := Message{ID: types.NewID(), ConsultationID: consultationID, Body: "hello"}
	hub.Broadcast(msg)

	for _, ch := range []<-chan Message{first, second} {
		select {
		case got := <-ch:
			if got.ID != msg.ID {
				t.Fatalf("got message %s; want %s", got.ID, msg.ID)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}

	select {
	case got := <-other:
		t.Fatalf("other consultation received message %s", got.ID)
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	consultationID := types.NewID()

	ch, unsubscribe := hub.Subscribe(consultationID)
	if hub.Subscribers(consultationID) != 1 {
		t.Fatalf("subscribers = %d; want 1", hub.Subscribers(consultationID))
	}

	unsubscribe()
	if hub.Subscribers(consultationID) != 0 {
		t.Fatalf("subscribers after unsubscribe = %d; want 0", hub.Subscribers(consultationID))
	}

	if _, open := <-ch; open {
		t.Fatal("channel must be closed on unsubscribe")
	}

	// Second call is a no-op, not a double close
	unsubscribe()

	hub.Broadcast(Message{ID: types.NewID(), ConsultationID: consultationID})
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	consultationID := types.NewID()

	_, unsubscribe := hub.Subscribe(consultationID)
	defer unsubscribe()

	// Fill well past the channel buffer; Broadcast must drop, not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(Message{ID: types.NewID(), ConsultationID: consultationID})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
}

func TestNewMessage(t *testing.T) {
	sender := &auth.Principal{ID: types.NewID(), Role: auth.RolePatient, Name: "Ana"}
	consultationID := types.NewID()

	t.Run("defaults to text", func(t *testing.T) {
		m, err := New(consultationID, sender, "", "hello")
		if err != nil {
			t.Fatal(err)
		}
		if m.Kind != KindText {
			t.Fatalf("kind = %s; want text", m.Kind)
		}
		if m.ID.IsZero() {
			t.Fatal("message must get a server-assigned ID")
		}
		if m.SenderID != sender.ID || m.SenderRole != auth.RolePatient {
			t.Fatal("sender not recorded")
		}
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		if _, err := New(consultationID, sender, "gif", "hello"); !errors.Is(err, errors.ErrValidation) {
			t.Fatalf("err = %v; want validation error", err)
		}
	})

	t.Run("rejects empty body", func(t *testing.T) {
		if _, err := New(consultationID, sender, KindText, "   "); !errors.Is(err, errors.ErrValidation) {
			t.Fatalf("err = %v; want validation error", err)
		}
	})

	t.Run("accepts transcription kind", func(t *testing.T) {
		m, err := New(consultationID, sender, KindTranscription, "patient said hello")
		if err != nil {
			t.Fatal(err)
		}
		if m.Kind != KindTranscription {
			t.Fatalf("kind = %s; want transcription", m.Kind)
		}
	})
}
