package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 4)
	defer unsub()

	b.Publish(Event{Kind: KindSyncProgress, Timestamp: time.Now(), Payload: "p"})

	select {
	case evt := <-ch:
		if evt.Kind != KindSyncProgress {
			t.Errorf("kind = %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	syncCh, unsub1 := b.Subscribe("sync.", 4)
	defer unsub1()
	allCh, unsub2 := b.Subscribe("", 4)
	defer unsub2()

	b.Publish(Event{Kind: KindMessageUpserted, Timestamp: time.Now()})

	select {
	case evt := <-syncCh:
		t.Errorf("sync subscriber received %q", evt.Kind)
	default:
	}
	select {
	case <-allCh:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber missed event")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Kind: KindSyncProgress, Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 4)
	unsub()

	b.Publish(Event{Kind: KindSyncProgress, Timestamp: time.Now()})

	select {
	case <-ch:
		t.Error("received event after unsubscribe")
	default:
	}
}
