package rag

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gamma-omg/pdf-rag/vectorindex"
	"github.com/oklog/ulid"
)

// Index is a nearest neighbour index over the vectors of one document,
// position i standing for chunk i.
type Index interface {
	Len() int
	Search(ctx context.Context, query []float32, k int) ([]vectorindex.Hit, error)
	Close() error
}

// Session is the loaded document. Its fields are never modified after
// creation. Readers may keep using a session after it has been replaced, the
// index is released only once the store and every reader have let go of it.
type Session struct {
	ID       ulid.ULID
	Filename string
	Pages    int
	Chunks   []string
	Index    Index
	LoadedAt time.Time

	// one reference belongs to the store, one to each reader
	refs atomic.Int64
}

func newSession(filename string, pages int, chunks []string, index Index, now time.Time) (*Session, error) {
	if len(chunks) == 0 {
		return nil, ErrChunkingFailed
	}
	if index == nil || index.Len() != len(chunks) {
		n := 0
		if index != nil {
			n = index.Len()
		}
		return nil, wrap(ErrIndexFailed, fmt.Errorf("index holds %d vectors for %d chunks", n, len(chunks)))
	}

	session := &Session{
		ID:       ulid.MustNew(ulid.Timestamp(now), rand.Reader),
		Filename: filename,
		Pages:    pages,
		Chunks:   append([]string(nil), chunks...),
		Index:    index,
		LoadedAt: now,
	}
	session.refs.Store(1)

	return session, nil
}

// retain takes a reference unless the session has already been drained.
func (s *Session) retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and reports whether it was the last one.
func (s *Session) release() bool {
	return s.refs.Add(-1) == 0
}

// SessionStore holds the single active session. Every transition is one
// pointer swap, so a reader sees either the old session or the new one.
type SessionStore struct {
	current atomic.Pointer[Session]
}

// Get returns the active session or nil.
func (s *SessionStore) Get() *Session {
	return s.current.Load()
}

// Acquire returns the active session with a reader reference held, or nil.
// The caller must hand it back to release.
func (s *SessionStore) Acquire() *Session {
	for {
		session := s.current.Load()
		if session == nil {
			return nil
		}
		if session.retain() {
			return session
		}
	}
}

// Replace makes next the active session and returns the one it replaced. The
// store's reference to the returned session passes to the caller.
func (s *SessionStore) Replace(next *Session) *Session {
	return s.current.Swap(next)
}

// Clear drops the active session and returns it along with the store's
// reference.
func (s *SessionStore) Clear() *Session {
	return s.current.Swap(nil)
}
