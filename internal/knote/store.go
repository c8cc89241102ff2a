package knote

import "sync"

// Store is one filter's knote registry: a map keyed by ident plus a ready
// list of knotes awaiting copy-out. A single reader-writer lock serializes
// structural mutation; Remove unlinks from both containers under one write
// acquisition so a racing copy-out can never observe a half-deleted knote
// (see the DELETE-vs-ready-list decision recorded in DESIGN.md).
type Store struct {
	mu       sync.RWMutex
	byIdent  map[uint64]*Knote
	readyHd  *Knote
	readyTl  *Knote
	numReady int
}

// New creates an empty Store.
func New() *Store {
	return &Store{byIdent: make(map[uint64]*Knote)}
}

// Lookup returns the knote for ident with its reference count pinned. The
// caller must call Release on the returned knote once done.
func (s *Store) Lookup(ident uint64) (*Knote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byIdent[ident]
	if ok {
		k.retain()
	}
	return k, ok
}

// LookupByData scans for a knote whose Handle satisfies match, used only
// by the vnode filter to resolve a watch descriptor back to its knote
// (§4.1's secondary lookup key). Handle, not Data, is used because Data
// doubles as the filter's per-wakeup output payload and is overwritten on
// every fire; Handle is stable for the knote's lifetime.
func (s *Store) LookupByData(match func(interface{}) bool) (*Knote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.byIdent {
		if match(k.Handle) {
			k.retain()
			return k, true
		}
	}
	return nil, false
}

// Insert adds a new knote keyed by its ident. It is an error to insert a
// duplicate ident; callers must Lookup first (a second ADD modifies the
// existing knote instead of inserting).
func (s *Store) Insert(k *Knote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIdent[k.Ident()] = k
}

// Remove unlinks k from both the ident map and the ready list atomically.
func (s *Store) Remove(k *Knote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byIdent, k.Ident())
	s.unlinkReadyLocked(k)
}

// MarkReady appends k to the ready list if it is not already linked (a
// knote is in at most one ready list at a time).
func (s *Store) MarkReady(k *Knote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.ready {
		return
	}
	k.ready = true
	k.next = nil
	if s.readyTl == nil {
		s.readyHd, s.readyTl = k, k
	} else {
		s.readyTl.next = k
		s.readyTl = k
	}
	s.numReady++
}

// DrainReady detaches and returns the entire ready list as a slice,
// resetting it to empty.
func (s *Store) DrainReady() []*Knote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Knote, 0, s.numReady)
	for n := s.readyHd; n != nil; {
		next := n.next
		n.ready = false
		n.next = nil
		out = append(out, n)
		n = next
	}
	s.readyHd, s.readyTl, s.numReady = nil, nil, 0
	return out
}

func (s *Store) unlinkReadyLocked(k *Knote) {
	if !k.ready {
		return
	}
	var prev *Knote
	for n := s.readyHd; n != nil; n = n.next {
		if n == k {
			if prev == nil {
				s.readyHd = n.next
			} else {
				prev.next = n.next
			}
			if n == s.readyTl {
				s.readyTl = prev
			}
			s.numReady--
			break
		}
		prev = n
	}
	k.ready = false
	k.next = nil
}

// Iter produces a snapshot-safe sequence of every knote currently stored.
func (s *Store) Iter() []*Knote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Knote, 0, len(s.byIdent))
	for _, k := range s.byIdent {
		out = append(out, k)
	}
	return out
}

// Len reports the number of registered knotes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byIdent)
}
