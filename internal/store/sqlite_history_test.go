package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestAppendHistory_AssignsSequenceAndID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := &HistoryEntry{
		Component: "tradeRacks",
		Action:    "save",
		Title:     "Saved rack configuration \"A\"",
		Details:   json.RawMessage(`{"name":"A"}`),
		SessionID: "sess-1",
	}
	seq, err := s.AppendHistory(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 1 || e.Sequence != 1 || e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("entry = %+v, seq %d", e, seq)
	}

	got, err := s.GetHistoryAfter(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("entries = %d", len(got))
	}
	if got[0].ID != e.ID || got[0].Title != e.Title || string(got[0].Details) != `{"name":"A"}` || got[0].SessionID != "sess-1" {
		t.Errorf("round trip = %+v", got[0])
	}
	if !got[0].Timestamp.Equal(e.Timestamp.UTC()) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, e.Timestamp)
	}
}

func TestAppendHistory_NilDetails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.AppendHistory(ctx, &HistoryEntry{Component: "ui", Action: "update", Title: "t", Details: json.RawMessage("null")}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.RecentHistory(ctx, 1)
	if len(got) != 1 || got[0].Details != nil {
		t.Errorf("details = %s", got[0].Details)
	}
}

func TestAppendHistoryBatch_OrderAndEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seq, err := s.AppendHistoryBatch(ctx, nil)
	if err != nil || seq != 0 {
		t.Errorf("empty batch = %d, %v", seq, err)
	}

	batch := make([]HistoryEntry, 5)
	for i := range batch {
		batch[i] = HistoryEntry{Component: "mepItems", Action: "add", Title: fmt.Sprintf("item %d", i)}
	}
	seq, err = s.AppendHistoryBatch(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 5 {
		t.Errorf("highest seq = %d", seq)
	}

	after, err := s.GetHistoryAfter(ctx, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 3 || after[0].Title != "item 2" {
		t.Errorf("after 2 = %+v", after)
	}
	recent, err := s.RecentHistory(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Title != "item 4" || recent[1].Title != "item 3" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestTrimHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	batch := make([]HistoryEntry, 10)
	for i := range batch {
		batch[i] = HistoryEntry{Component: "ui", Action: "update", Title: fmt.Sprint(i)}
	}
	if _, err := s.AppendHistoryBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		keep    int
		removed int64
		left    int64
	}{
		{keep: 20, removed: 0, left: 10},
		{keep: 4, removed: 6, left: 4},
		{keep: -1, removed: 4, left: 0},
	}
	for _, tt := range tests {
		n, err := s.TrimHistory(ctx, tt.keep)
		if err != nil {
			t.Fatal(err)
		}
		if n != tt.removed {
			t.Errorf("keep %d: removed %d, want %d", tt.keep, n, tt.removed)
		}
		st, err := s.GetStats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if st.HistoryEntries != tt.left {
			t.Errorf("keep %d: left %d, want %d", tt.keep, st.HistoryEntries, tt.left)
		}
		if st.LastCompactionAt == nil || time.Since(*st.LastCompactionAt) > time.Minute {
			t.Errorf("last compaction = %v", st.LastCompactionAt)
		}
	}

	// Sequences keep growing after a trim.
	seq, err := s.AppendHistory(ctx, &HistoryEntry{Component: "ui", Action: "update", Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if seq != 11 {
		t.Errorf("seq after trim = %d, want 11", seq)
	}
}
