package backtest

import (
	"math"
	"testing"
)

func TestHistory_AppendAndGet(t *testing.T) {
	var h History[float64]
	h.Append(NewDate(2025, 3, 11), 0.2)
	h.Append(NewDate(2025, 3, 10), 0.1)

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
	// Appends keep the series chronological.
	d, v := h.Latest()
	if d != NewDate(2025, 3, 11) || v != 0.2 {
		t.Errorf("Latest() = %v, %v", d, v)
	}
	if got, ok := h.Get(NewDate(2025, 3, 10)); !ok || got != 0.1 {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if _, ok := h.Get(NewDate(2025, 3, 12)); ok {
		t.Error("Get on an absent date reported ok")
	}
}

func TestHistory_OverwriteSameDate(t *testing.T) {
	var h History[float64]
	day := NewDate(2025, 3, 10)
	h.Append(day, math.NaN())
	h.Append(day, 0.5)

	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
	if got, _ := h.Get(day); got != 0.5 {
		t.Errorf("Get = %v, want the overwritten value", got)
	}
}

func TestHistory_Values(t *testing.T) {
	var h History[string]
	h.Append(NewDate(2025, 3, 10), "a")
	h.Append(NewDate(2025, 3, 11), "b")

	var got []string
	for _, v := range h.Values() {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Values() = %v", got)
	}
}
