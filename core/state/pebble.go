package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrClosed is returned by a closed PebbleStore.
var ErrClosed = errors.New("state: store closed")

var sessionPrefix = []byte("session/")

// PebbleStore keeps sessions on disk so an in-progress flow survives a
// restart. Values are JSON-encoded Session records.
type PebbleStore struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

// OpenPebbleStore opens (or creates) a session database at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("state: open pebble %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func sessionKey(k Key) []byte {
	return append(append([]byte(nil), sessionPrefix...), k.String()...)
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *PebbleStore) Get(_ context.Context, key Key) (Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return Session{}, ErrClosed
	}

	value, closer, err := p.db.Get(sessionKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	defer closer.Close()

	var s Session
	if err := json.Unmarshal(value, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return s, nil
}

func (p *PebbleStore) Put(_ context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Set(sessionKey(s.Key), data, pebble.Sync)
}

func (p *PebbleStore) Delete(_ context.Context, key Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.db.Delete(sessionKey(key), pebble.Sync)
}

// Sweep scans every session and deletes those idle since before cutoff.
// Undecodable records are removed as well.
func (p *PebbleStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: prefixUpperBound(sessionPrefix),
	})
	if err != nil {
		return 0, err
	}
	batch := p.db.NewBatch()
	defer batch.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var s Session
		if err := json.Unmarshal(iter.Value(), &s); err == nil && !s.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			_ = iter.Close()
			return 0, err
		}
		n++
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PebbleStore) Len(context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrClosed
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: sessionPrefix,
		UpperBound: prefixUpperBound(sessionPrefix),
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Close()
}

func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
