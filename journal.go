package backtest

import "container/list"

// orderJournal is an associative journal of order records keyed by order id,
// iterated in last-modification order: putting an existing id moves its entry
// to the end in amortized O(1).
type orderJournal struct {
	byID map[string]*list.Element
	seq  *list.List // of journalEntry, oldest modification first
}

type journalEntry struct {
	id  string
	rec Record
}

func newOrderJournal() *orderJournal {
	return &orderJournal{
		byID: make(map[string]*list.Element),
		seq:  list.New(),
	}
}

// Put inserts the record under id, or overwrites it and moves the entry to
// the most-recently-modified position.
func (j *orderJournal) Put(id string, rec Record) {
	if e, ok := j.byID[id]; ok {
		e.Value = journalEntry{id: id, rec: rec}
		j.seq.MoveToBack(e)
		return
	}
	j.byID[id] = j.seq.PushBack(journalEntry{id: id, rec: rec})
}

// Get returns the latest record stored under id.
func (j *orderJournal) Get(id string) (Record, bool) {
	e, ok := j.byID[id]
	if !ok {
		return nil, false
	}
	return e.Value.(journalEntry).rec, true
}

// Len returns the number of entries.
func (j *orderJournal) Len() int { return j.seq.Len() }

// Records returns the records in last-modification order.
func (j *orderJournal) Records() []Record {
	out := make([]Record, 0, j.seq.Len())
	for e := j.seq.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(journalEntry).rec)
	}
	return out
}
