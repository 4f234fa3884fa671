package geo

import (
	"container/list"
	"fmt"
	"math"
	"sync"
)

// Matrix computes symmetric all-pairs distance matrices and caches pairwise
// results across calls. The cache is keyed by quantized coordinate pairs so
// repeated plans over the same service area hit warm entries, and it is
// bounded with LRU eviction. Safe for concurrent use.
type Matrix struct {
	mu       sync.Mutex
	capacity int
	entries  map[pairKey]*list.Element
	lru      *list.List // front = most recently used
}

const quantPrecision = 1e5 // 5 decimal places, ~1m resolution

type pairKey struct {
	aLat, aLng, bLat, bLng int64
}

type cacheEntry struct {
	key  pairKey
	dist float64
}

// DefaultCacheCapacity bounds the pairwise cache when no capacity is given.
const DefaultCacheCapacity = 1 << 16

// NewMatrix returns a Matrix with the given pairwise cache capacity.
// capacity <= 0 selects DefaultCacheCapacity.
func NewMatrix(capacity int) *Matrix {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Matrix{
		capacity: capacity,
		entries:  make(map[pairKey]*list.Element),
		lru:      list.New(),
	}
}

func quantize(v float64) int64 { return int64(math.Round(v * quantPrecision)) }

func keyFor(a, b Point) pairKey {
	qa := [2]int64{quantize(a.Lat), quantize(a.Lng)}
	qb := [2]int64{quantize(b.Lat), quantize(b.Lng)}
	// canonical order keeps the key symmetric
	if qb[0] < qa[0] || (qb[0] == qa[0] && qb[1] < qa[1]) {
		qa, qb = qb, qa
	}
	return pairKey{qa[0], qa[1], qb[0], qb[1]}
}

// Distance returns the cached great-circle distance between a and b,
// computing and caching it on a miss.
func (m *Matrix) Distance(a, b Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, fmt.Errorf("%w: (%v,%v)-(%v,%v)", ErrInvalidCoordinate, a.Lat, a.Lng, b.Lat, b.Lng)
	}
	k := keyFor(a, b)
	m.mu.Lock()
	if el, ok := m.entries[k]; ok {
		m.lru.MoveToFront(el)
		d := el.Value.(*cacheEntry).dist
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	d := haversine(a.Lat, a.Lng, b.Lat, b.Lng)

	m.mu.Lock()
	if _, ok := m.entries[k]; !ok {
		m.entries[k] = m.lru.PushFront(&cacheEntry{key: k, dist: d})
		for m.lru.Len() > m.capacity {
			last := m.lru.Back()
			m.lru.Remove(last)
			delete(m.entries, last.Value.(*cacheEntry).key)
		}
	}
	m.mu.Unlock()
	return d, nil
}

// Build computes the full symmetric distance matrix for an ordered location
// list. O(n^2) time and space; pairwise results go through the cache.
func (m *Matrix) Build(locations []Point) ([][]float64, error) {
	n := len(locations)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := m.Distance(locations[i], locations[j])
			if err != nil {
				return nil, err
			}
			out[i][j] = d
			out[j][i] = d
		}
	}
	return out, nil
}

// Len reports the current number of cached pairs.
func (m *Matrix) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Clear drops all cached pairs.
func (m *Matrix) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[pairKey]*list.Element)
	m.lru.Init()
}
