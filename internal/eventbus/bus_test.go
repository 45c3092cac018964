package eventbus

import (
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/domain"
)

func TestBusDeliversOnlyMatchingMission(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe("m1")
	defer sub.Close()

	other := b.Subscribe("m2")
	defer other.Close()

	b.Publish(domain.StoredEvent{MissionID: "m1", Sequence: 1})
	b.Publish(domain.StoredEvent{MissionID: "m2", Sequence: 1})

	select {
	case ev := <-sub.Events():
		if ev.MissionID != "m1" {
			t.Fatalf("got mission %q, want m1", ev.MissionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected second delivery on m1 subscriber: %+v", ev)
	default:
	}
}

func TestBusAllFilterSeesEveryMission(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe("all")
	defer sub.Close()

	b.Publish(domain.StoredEvent{MissionID: "m1", Sequence: 1})
	b.Publish(domain.StoredEvent{MissionID: "m2", Sequence: 1})

	for i := 0; i < 2; i++ {
		select {
		case <-sub.Events():
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBusOverflowSignalsLag(t *testing.T) {
	b := New(1, nil)
	sub := b.Subscribe("m1")
	defer sub.Close()

	for i := int64(1); i <= 5; i++ {
		b.Publish(domain.StoredEvent{MissionID: "m1", Sequence: i})
	}

	select {
	case <-sub.Lagged():
	case <-time.After(time.Second):
		t.Fatal("expected lag signal after buffer overflow")
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe("m1")
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
}
