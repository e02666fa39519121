package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/meridian-courier/device-trust/models"
)

func TestMemoryBrokerFanOut(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	ch1, cancel1, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel1()
	ch2, cancel2, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel2()

	ev := Event{Kind: KindInsert, Device: models.TrustedDevice{ID: "d1", AccountID: 7}}
	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Kind != KindInsert || got.Device.ID != "d1" {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestMemoryBrokerCancelClosesChannel(t *testing.T) {
	b := NewMemoryBroker()
	ch, cancel, err := b.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after cancel must not panic or block.
	if err := b.Publish(context.Background(), Event{Kind: KindDelete}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}
