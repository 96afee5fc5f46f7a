package events

import (
	"testing"

	"github.com/hyperengineering/traderack/internal/mep"
)

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(8)
	defer sub.Close()

	b.Publish(TradeRackSelected, nil)
	b.Publish(MEPItemsUpdated, nil)
	b.Publish(TradeRackDeselected, nil)

	want := []Name{TradeRackSelected, MEPItemsUpdated, TradeRackDeselected}
	for i, name := range want {
		ev := <-sub.C
		if ev.Name != name || ev.Seq != uint64(i+1) {
			t.Errorf("event %d = %s/%d, want %s/%d", i, ev.Name, ev.Seq, name, i+1)
		}
	}
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1)
	defer sub.Close()

	b.Publish(TradeRackUpdated, nil)
	b.Publish(TradeRackUpdated, nil)

	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1)
	sub.Close()
	if b.Subscribers() != 0 {
		t.Fatal("subscriber still registered")
	}
	b.Publish(TradeRackUpdated, nil)
	if _, ok := <-sub.C; ok {
		t.Error("closed subscription received an event")
	}
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4)
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Error("subscription still open after bus close")
	}
	sub.Close()
	b.Close()

	late := b.Subscribe(4)
	if _, ok := <-late.C; ok {
		t.Error("subscription on a closed bus is open")
	}
	b.Publish(TradeRackUpdated, nil)
	if got := b.Subscribers(); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}
}

func TestNewMEPItemsUpdated_SetsKindField(t *testing.T) {
	tests := []struct {
		kind mep.Kind
		get  func(MEPItemsUpdatedDetail) string
	}{
		{mep.Duct, func(d MEPItemsUpdatedDetail) string { return d.UpdatedDuctID }},
		{mep.Pipe, func(d MEPItemsUpdatedDetail) string { return d.UpdatedPipeID }},
		{mep.Conduit, func(d MEPItemsUpdatedDetail) string { return d.UpdatedConduitID }},
		{mep.CableTray, func(d MEPItemsUpdatedDetail) string { return d.UpdatedCableTrayID }},
	}
	for _, tt := range tests {
		d := NewMEPItemsUpdated(nil, tt.kind, "x")
		if tt.get(d) != "x" {
			t.Errorf("%s: id not set", tt.kind)
		}
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Publish(MEPItemsUpdated, 1)
	r.Publish(MEPItemsUpdated, 2)
	r.Publish(TradeRackUpdated, 3)
	if r.Count(MEPItemsUpdated) != 2 {
		t.Errorf("Count = %d", r.Count(MEPItemsUpdated))
	}
	last, ok := r.Last(MEPItemsUpdated)
	if !ok || last.Detail != 2 {
		t.Errorf("Last = %+v", last)
	}
	r.Reset()
	if len(r.Events()) != 0 {
		t.Error("Reset kept events")
	}
}
