package storage

import (
	"errors"
	"sort"
)

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch is an ordered list of writes applied atomically by Database.Write.
type Batch struct {
	ops []batchOp
}

// Put queues a write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete queues a removal.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

// Len reports the number of queued operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a parent database. Reads observe pending
// writes first. Nothing reaches the parent until Commit; Discard drops every
// pending write, so one ledger transition either lands completely or not at
// all.
type Overlay struct {
	parent  Database
	pending map[string]overlayEntry
	closed  bool
}

var errOverlayClosed = errors.New("storage: overlay already committed or discarded")

// NewOverlay wraps parent in a fresh write buffer.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{parent: parent, pending: make(map[string]overlayEntry)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	o.pending[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if o.closed {
		return nil, errOverlayClosed
	}
	if entry, ok := o.pending[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	if o.closed {
		return false, errOverlayClosed
	}
	if entry, ok := o.pending[string(key)]; ok {
		return !entry.deleted, nil
	}
	return o.parent.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	if o.closed {
		return errOverlayClosed
	}
	o.pending[string(key)] = overlayEntry{deleted: true}
	return nil
}

// Write stages the batch in the overlay.
func (o *Overlay) Write(batch *Batch) error {
	if batch == nil {
		return nil
	}
	for _, op := range batch.ops {
		var err error
		if op.delete {
			err = o.Delete(op.key)
		} else {
			err = o.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Pending reports the number of staged keys.
func (o *Overlay) Pending() int { return len(o.pending) }

// Commit flushes all staged writes to the parent in one batch.
func (o *Overlay) Commit() error {
	if o.closed {
		return errOverlayClosed
	}
	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		entry := o.pending[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := o.parent.Write(batch); err != nil {
		return err
	}
	o.closed = true
	o.pending = nil
	return nil
}

// Discard drops every staged write.
func (o *Overlay) Discard() {
	o.closed = true
	o.pending = nil
}

// Close satisfies Database; the parent stays open.
func (o *Overlay) Close() {
	o.Discard()
}
