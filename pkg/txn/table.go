package txn

// Table holds the open records of one coordinator together with their
// creation order. It owns the id counter; ids are never shared between
// coordinators. Not safe for concurrent use.
type Table struct {
	ttl     int64
	nextID  uint32
	records map[uint32]*Record
	queue   []uint32 // creation order, may hold already retired ids
}

func NewTable(ttl int64) *Table {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{
		ttl:     ttl,
		nextID:  1,
		records: make(map[uint32]*Record),
	}
}

// Begin registers a record and returns its id. Callers must register
// before sending anything that can be answered.
func (t *Table) Begin(op Op, key, value string, now int64) uint32 {
	id := t.nextID
	t.nextID++
	t.records[id] = &Record{ID: id, Op: op, Key: key, Value: value, Start: now}
	t.queue = append(t.queue, id)
	return id
}

// Ack applies one reply. Reads adopt the first successful value. The
// record is retired, and returned, once it has Quorum successes or
// Replicas replies. Replies for unknown or retired ids are ignored.
func (t *Table) Ack(id uint32, success bool, value string) (Outcome, bool) {
	rec, ok := t.records[id]
	if !ok {
		return Outcome{}, false
	}
	rec.Replies++
	if success {
		rec.Successes++
		if rec.Op == OpRead && !rec.hasValue {
			rec.Value = value
			rec.hasValue = true
		}
	}

	switch {
	case rec.Successes >= Quorum:
		return t.retire(rec, true, ReasonQuorum), true
	case rec.Replies >= Replicas:
		return t.retire(rec, false, ReasonExhausted), true
	default:
		return Outcome{}, false
	}
}

// Fail retires an open record as failed.
func (t *Table) Fail(id uint32, reason Reason) (Outcome, bool) {
	rec, ok := t.records[id]
	if !ok {
		return Outcome{}, false
	}
	return t.retire(rec, false, reason), true
}

// Sweep retires, in creation order, every record open for at least the
// TTL. It stops at the first record still within it.
func (t *Table) Sweep(now int64) []Outcome {
	var out []Outcome
	for len(t.queue) > 0 {
		id := t.queue[0]
		rec, open := t.records[id]
		if open && now-rec.Start < t.ttl {
			break
		}
		t.queue = t.queue[1:]
		if open {
			out = append(out, t.retire(rec, false, ReasonExpired))
		}
	}
	if len(t.queue) == 0 {
		t.queue = nil
	}
	return out
}

func (t *Table) retire(rec *Record, success bool, reason Reason) Outcome {
	delete(t.records, rec.ID)
	return Outcome{Record: *rec, Success: success, Reason: reason}
}

// Get returns a copy of an open record.
func (t *Table) Get(id uint32) (Record, bool) {
	rec, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len is the number of open records.
func (t *Table) Len() int { return len(t.records) }
