package store

import (
	"math"
	"strconv"
)

// Set implements the unconditional `set` command: store value under key
// regardless of whether it already exists.
func (s *Store) Set(key []byte, flags, exptime uint32, value []byte) (*Item, error) {
	it, err := s.Alloc(key, flags, exptime, len(value))
	if err != nil {
		return nil, err
	}
	copy(it.Value, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.lookupLocked(hashKey(key), key)
	if old != nil {
		s.unlinkLocked(old)
		s.releaseLocked(old)
	}
	s.linkLocked(it)
	return it, nil
}

// Add implements `add`: store only if key is absent.
func (s *Store) Add(key []byte, flags, exptime uint32, value []byte) (*Item, error) {
	s.mu.Lock()
	now := s.Now()
	existing := s.lookupLocked(hashKey(key), key)
	if existing != nil && !s.expired(existing, now) {
		s.mu.Unlock()
		return nil, ErrNotStored
	}
	s.mu.Unlock()

	it, err := s.Alloc(key, flags, exptime, len(value))
	if err != nil {
		return nil, err
	}
	copy(it.Value, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	now = s.Now()
	cur := s.lookupLocked(hashKey(key), key)
	if cur != nil && !s.expired(cur, now) {
		s.releaseLocked(it)
		return nil, ErrNotStored
	}
	if cur != nil {
		s.unlinkLocked(cur)
		s.releaseLocked(cur)
	}
	s.linkLocked(it)
	return it, nil
}

// ReplaceCmd implements `replace`: store only if key is present.
func (s *Store) ReplaceCmd(key []byte, flags, exptime uint32, value []byte) (*Item, error) {
	s.mu.Lock()
	now := s.Now()
	existing := s.lookupLocked(hashKey(key), key)
	if existing == nil || s.expired(existing, now) {
		s.mu.Unlock()
		return nil, ErrNotStored
	}
	s.mu.Unlock()

	it, err := s.Alloc(key, flags, exptime, len(value))
	if err != nil {
		return nil, err
	}
	copy(it.Value, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.lookupLocked(hashKey(key), key)
	if cur == nil {
		// Raced with a delete between the check above and now.
		s.releaseLocked(it)
		return nil, ErrNotStored
	}
	s.unlinkLocked(cur)
	s.releaseLocked(cur)
	s.linkLocked(it)
	return it, nil
}

// concat implements `append`/`prepend`: require the key present, and
// build a newly allocated item combining the existing value with data,
// preserving the existing flags and expiration. Exceeding the largest
// slab class returns NOT_STORED, per spec.md's Open Questions note.
func (s *Store) concat(key []byte, data []byte, prepend bool) (*Item, error) {
	s.mu.Lock()
	cur := s.lookupLocked(hashKey(key), key)
	now := s.Now()
	if cur == nil || s.expired(cur, now) {
		s.mu.Unlock()
		return nil, ErrNotStored
	}
	flags, exptime := cur.Flags, cur.Exptime
	oldValue := append([]byte(nil), cur.Value...)
	s.mu.Unlock()

	var combined []byte
	if prepend {
		combined = make([]byte, 0, len(data)+len(oldValue))
		combined = append(combined, data...)
		combined = append(combined, oldValue...)
	} else {
		combined = make([]byte, 0, len(oldValue)+len(data))
		combined = append(combined, oldValue...)
		combined = append(combined, data...)
	}

	it, err := s.Alloc(key, flags, exptime, len(combined))
	if err == ErrTooLarge || err == ErrOutOfMemory {
		return nil, ErrNotStored
	}
	if err != nil {
		return nil, err
	}
	copy(it.Value, combined)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur = s.lookupLocked(hashKey(key), key)
	if cur == nil {
		s.releaseLocked(it)
		return nil, ErrNotStored
	}
	s.unlinkLocked(cur)
	s.releaseLocked(cur)
	s.linkLocked(it)
	return it, nil
}

func (s *Store) Append(key, data []byte) (*Item, error)  { return s.concat(key, data, false) }
func (s *Store) Prepend(key, data []byte) (*Item, error) { return s.concat(key, data, true) }

// Cas implements `cas`: store only if the existing item's CAS token
// matches. Missing key returns ErrNotFound; mismatch returns ErrExists.
func (s *Store) Cas(key []byte, flags, exptime uint32, value []byte, cas uint64) (*Item, error) {
	s.mu.Lock()
	now := s.Now()
	cur := s.lookupLocked(hashKey(key), key)
	if cur == nil || s.expired(cur, now) {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if cur.CAS != cas {
		s.mu.Unlock()
		return nil, ErrExists
	}
	s.mu.Unlock()

	it, err := s.Alloc(key, flags, exptime, len(value))
	if err != nil {
		return nil, err
	}
	copy(it.Value, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur = s.lookupLocked(hashKey(key), key)
	if cur == nil || cur.CAS != cas {
		s.releaseLocked(it)
		if cur == nil {
			return nil, ErrNotFound
		}
		return nil, ErrExists
	}
	s.unlinkLocked(cur)
	s.releaseLocked(cur)
	s.linkLocked(it)
	return it, nil
}

// Delete implements `delete`: unlink the item if present.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.lookupLocked(hashKey(key), key)
	if it == nil || s.expired(it, s.Now()) {
		return ErrNotFound
	}
	s.unlinkLocked(it)
	s.releaseLocked(it)
	return nil
}

// IncrDecr implements `incr`/`decr`: parse the stored value as an
// unsigned decimal, add or subtract delta (decrement saturates at zero,
// increment wraps modulo 2^64), and reallocate the item if the new
// decimal representation is longer than the old one (spec.md §4.3).
func (s *Store) IncrDecr(key []byte, delta uint64, incr bool) (uint64, error) {
	s.mu.Lock()
	cur := s.lookupLocked(hashKey(key), key)
	now := s.Now()
	if cur == nil || s.expired(cur, now) {
		s.mu.Unlock()
		return 0, ErrNotFound
	}
	cur.refCount++
	flags, exptime := cur.Flags, cur.Exptime
	oldValue := append([]byte(nil), cur.Value...)
	s.mu.Unlock()

	n, ok := parseUnsignedDecimal(oldValue)
	if !ok {
		s.Release(cur)
		return 0, ErrBadDelta
	}

	var next uint64
	if incr {
		next = n + delta // wraps modulo 2^64 per spec.md
	} else {
		if delta > n {
			next = 0
		} else {
			next = n - delta
		}
	}
	newValue := []byte(strconv.FormatUint(next, 10))

	if len(newValue) <= len(cur.Value) {
		// In-place update: same allocation, no reallocation needed.
		s.mu.Lock()
		copy(cur.Value, newValue)
		cur.Value = cur.Value[:len(newValue)]
		s.casSeq++
		cur.CAS = s.casSeq
		s.releaseLocked(cur)
		s.mu.Unlock()
		return next, nil
	}

	s.Release(cur)
	it, err := s.Alloc(key, flags, exptime, len(newValue))
	if err != nil {
		return 0, err
	}
	copy(it.Value, newValue)
	s.Replace(cur, it)
	return next, nil
}

// parseUnsignedDecimal implements the corrected intent behind spec.md's
// Open Questions note on the digit-skip defect: skip any leading
// non-digit bytes, then parse an unsigned decimal; a non-digit found
// after parsing starts is a failure, as is an empty digit run.
func parseUnsignedDecimal(b []byte) (uint64, bool) {
	i := 0
	for i < len(b) && (b[i] < '0' || b[i] > '9') {
		i++
	}
	start := i
	var n uint64
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		d := uint64(b[i] - '0')
		if n > (math.MaxUint64-d)/10 {
			return 0, false
		}
		n = n*10 + d
		i++
	}
	if i == start {
		return 0, false
	}
	// Any byte after the digit run, whitespace included, is a failure;
	// callers pass in already-trimmed values.
	if i != len(b) {
		return 0, false
	}
	return n, true
}
