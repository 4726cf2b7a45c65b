package backtest

import "testing"

func TestOrderJournal_MoveToEnd(t *testing.T) {
	j := newOrderJournal()
	j.Put("a", Record{"id": "a", "status": "open"})
	j.Put("b", Record{"id": "b", "status": "open"})
	j.Put("c", Record{"id": "c", "status": "open"})

	// Overwriting an existing id replaces the record and moves it last.
	j.Put("a", Record{"id": "a", "status": "filled"})

	if j.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", j.Len())
	}

	recs := j.Records()
	var ids []string
	for _, r := range recs {
		ids = append(ids, r["id"].(string))
	}
	want := []string{"b", "c", "a"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
	if recs[2]["status"] != "filled" {
		t.Errorf("status = %v, want the overwriting record", recs[2]["status"])
	}
}

func TestOrderJournal_Get(t *testing.T) {
	j := newOrderJournal()
	j.Put("a", Record{"id": "a"})

	if _, ok := j.Get("missing"); ok {
		t.Error("Get on an unknown id reported ok")
	}
	rec, ok := j.Get("a")
	if !ok || rec["id"] != "a" {
		t.Errorf("Get(a) = %v, %v", rec, ok)
	}
}
