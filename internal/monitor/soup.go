package monitor

// soup is an insertion-ordered set of states.
type soup[E any] struct {
	items []State[E]
	index map[any]struct{}
}

func newSoup[E any]() *soup[E] {
	return &soup[E]{index: make(map[any]struct{})}
}

func (s *soup[E]) add(st State[E]) bool {
	id := identity(st)
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.items = append(s.items, st)
	return true
}

func (s *soup[E]) contains(st State[E]) bool {
	_, ok := s.index[identity(st)]
	return ok
}

// removeAll drops every state whose identity is in ids, in one pass.
func (s *soup[E]) removeAll(ids map[any]struct{}) {
	if len(ids) == 0 {
		return
	}
	kept := s.items[:0]
	for _, st := range s.items {
		id := identity(st)
		if _, drop := ids[id]; drop {
			delete(s.index, id)
			continue
		}
		kept = append(kept, st)
	}
	// Clear the tail so dropped states can be collected.
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
}

func (s *soup[E]) clear() {
	s.items = nil
	s.index = make(map[any]struct{})
}

// partitions splits the soup into a global bucket and per-key buckets.
// Without a key function every state lives in the global bucket.
type partitions[E any] struct {
	global  *soup[E]
	buckets map[string]*soup[E]
	order   []string // bucket creation order, for deterministic scans
	keyed   bool
}

func newPartitions[E any]() *partitions[E] {
	return &partitions[E]{
		global:  newSoup[E](),
		buckets: make(map[string]*soup[E]),
	}
}

// bucketFor returns the bucket a state belongs to, creating it if needed.
func (p *partitions[E]) bucketFor(st State[E]) *soup[E] {
	if !p.keyed {
		return p.global
	}
	if im, ok := st.(Immediate); ok && im.Immediate() {
		return p.global
	}
	ps, ok := st.(Partitioned)
	if !ok {
		return p.global
	}
	key, ok := ps.PartitionKey()
	if !ok {
		return p.global
	}
	b, exists := p.buckets[key]
	if !exists {
		b = newSoup[E]()
		p.buckets[key] = b
		p.order = append(p.order, key)
	}
	return b
}

// scan returns the buckets an event must be dispatched to. An unkeyed
// event reaches every bucket.
func (p *partitions[E]) scan(key string, hasKey bool) []*soup[E] {
	if !p.keyed || !hasKey {
		return p.all()
	}
	out := []*soup[E]{p.global}
	if b, ok := p.buckets[key]; ok {
		out = append(out, b)
	}
	return out
}

func (p *partitions[E]) all() []*soup[E] {
	out := make([]*soup[E], 0, len(p.order)+1)
	out = append(out, p.global)
	for _, key := range p.order {
		out = append(out, p.buckets[key])
	}
	return out
}

func (p *partitions[E]) add(st State[E]) bool {
	return p.bucketFor(st).add(st)
}

func (p *partitions[E]) contains(st State[E]) bool {
	return p.bucketFor(st).contains(st)
}

func (p *partitions[E]) len() int {
	n := len(p.global.items)
	for _, b := range p.buckets {
		n += len(b.items)
	}
	return n
}

// snapshot lists every active state, global bucket first.
func (p *partitions[E]) snapshot() []State[E] {
	out := make([]State[E], 0, p.len())
	for _, b := range p.all() {
		out = append(out, b.items...)
	}
	return out
}

// compact drops empty keyed buckets.
func (p *partitions[E]) compact() {
	kept := p.order[:0]
	for _, key := range p.order {
		if len(p.buckets[key].items) == 0 {
			delete(p.buckets, key)
			continue
		}
		kept = append(kept, key)
	}
	p.order = kept
}

// rebucket redistributes all states after the key function changes.
func (p *partitions[E]) rebucket(keyed bool) {
	states := p.snapshot()
	p.global = newSoup[E]()
	p.buckets = make(map[string]*soup[E])
	p.order = nil
	p.keyed = keyed
	for _, st := range states {
		p.add(st)
	}
}

func (p *partitions[E]) clear() {
	p.global.clear()
	p.buckets = make(map[string]*soup[E])
	p.order = nil
}
