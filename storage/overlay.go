package storage

// overlayDB buffers puts and deletes on top of a base Database. Reads consult
// the buffer first, so a transaction observes its own writes; nothing reaches
// the base until flush.
type overlayDB struct {
	base Database
	// A nil value marks a buffered delete.
	writes map[string][]byte
}

func (o *overlayDB) Put(key []byte, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	o.writes[string(key)] = stored
	return nil
}

func (o *overlayDB) Get(key []byte) ([]byte, error) {
	if value, ok := o.writes[string(key)]; ok {
		if value == nil {
			return nil, ErrNotFound
		}
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	}
	return o.base.Get(key)
}

func (o *overlayDB) Delete(key []byte) error {
	o.writes[string(key)] = nil
	return nil
}

func (o *overlayDB) Close() error { return nil }

// batchWriter is implemented by backends that can apply a write set in one
// atomic batch.
type batchWriter interface {
	WriteBatch(writes map[string][]byte) error
}

func (o *overlayDB) flush() error {
	if len(o.writes) == 0 {
		return nil
	}
	if batcher, ok := o.base.(batchWriter); ok {
		return batcher.WriteBatch(o.writes)
	}
	for key, value := range o.writes {
		if value == nil {
			if err := o.base.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	return nil
}

// Txn exposes the state accessors over a buffered overlay. A multi-record
// operation that fails midway is discarded whole, leaving the backing
// database at its pre-transaction contents.
type Txn struct {
	*State
	overlay *overlayDB
}

// Begin opens a transaction over the state's backing database.
func (s *State) Begin() *Txn {
	overlay := &overlayDB{base: s.db, writes: make(map[string][]byte)}
	return &Txn{State: &State{db: overlay}, overlay: overlay}
}

// Commit applies the buffered writes to the backing database. The transaction
// must not be reused afterwards.
func (t *Txn) Commit() error {
	return t.overlay.flush()
}

// Discard drops the buffered writes without touching the backing database.
func (t *Txn) Discard() {
	t.overlay.writes = make(map[string][]byte)
}
