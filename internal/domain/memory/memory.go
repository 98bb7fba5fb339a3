// Package memory implements the Memory Store: a unified keyed store of
// typed analysis entries with versioning and snapshot import/export (spec
// §4.3). Structurally grounded on the former vector-memory manager in this
// package (mutex-guarded map, sorted reads, factory constructor) but the
// data model and operations are the keyed/regex store the specification
// requires, not embeddings.
package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shells-above/swarmre/internal/domain/entity"
)

// Store is the keyed analysis store owned by one agent.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entity.AnalysisEntry
	version uint64
}

// NewStore creates an empty Memory Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entity.AnalysisEntry)}
}

// Store saves content under key, auto-suffixing on collision (key_1,
// key_2, ...) and bumping the version counter. Returns the key actually
// used.
func (s *Store) Store(key, content string, category entity.AnalysisCategory, address *uint64, related []uint64) (string, error) {
	if key == "" {
		return "", entity.ErrAnalysisKeyEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	finalKey := key
	if _, exists := s.entries[finalKey]; exists {
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s_%d", key, i)
			if _, exists := s.entries[candidate]; !exists {
				finalKey = candidate
				break
			}
		}
	}

	s.version++
	relatedCopy := append([]uint64(nil), related...)
	s.entries[finalKey] = &entity.AnalysisEntry{
		Key:              finalKey,
		Content:          content,
		Category:         category,
		Address:          address,
		RelatedAddresses: relatedCopy,
		Timestamp:        time.Now(),
		Version:          s.version,
	}
	return finalKey, nil
}

// GetFilter constrains a Get query. Zero-valued fields are wildcards; an
// empty Pattern means no regex filter.
type GetFilter struct {
	Key      string
	Address  *uint64
	Category entity.AnalysisCategory
	Pattern  string
}

// Get returns entries matching every non-empty filter field, sorted by
// timestamp descending. A non-empty Key short-circuits to 0 or 1 results.
func (s *Store) Get(f GetFilter) ([]entity.AnalysisEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f.Key != "" {
		e, ok := s.entries[f.Key]
		if !ok {
			return nil, nil
		}
		return []entity.AnalysisEntry{*e}, nil
	}

	var re *regexp.Regexp
	if f.Pattern != "" {
		compiled, err := regexp.Compile("(?i)" + f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		re = compiled
	}

	var out []entity.AnalysisEntry
	for _, e := range s.entries {
		if f.Address != nil && (e.Address == nil || *e.Address != *f.Address) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if re != nil && !re.MatchString(e.Content) {
			continue
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Snapshot is the self-describing serialized form of the store (spec §6
// Persistence: an `analyses` array).
type Snapshot struct {
	Analyses []SnapshotEntry `json:"analyses"`
}

// SnapshotEntry is one entry in a Snapshot; addresses are hex strings with a
// 0x prefix, timestamps are Unix seconds, at the persistence boundary.
type SnapshotEntry struct {
	Key              string   `json:"key"`
	Content          string   `json:"content"`
	Type             string   `json:"type"`
	Address          string   `json:"address,omitempty"`
	RelatedAddresses []string `json:"related_addresses,omitempty"`
	Timestamp        int64    `json:"timestamp"`
}

// Export serializes the current contents to a Snapshot.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Snapshot{Analyses: make([]SnapshotEntry, 0, len(s.entries))}
	for _, e := range s.entries {
		se := SnapshotEntry{
			Key:       e.Key,
			Content:   e.Content,
			Type:      string(e.Category),
			Timestamp: e.Timestamp.Unix(),
		}
		if e.Address != nil {
			se.Address = fmt.Sprintf("0x%x", *e.Address)
		}
		for _, a := range e.RelatedAddresses {
			se.RelatedAddresses = append(se.RelatedAddresses, fmt.Sprintf("0x%x", a))
		}
		out.Analyses = append(out.Analyses, se)
	}
	return out
}

// Restore replaces all contents with the snapshot's and bumps the version.
func (s *Store) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[string]*entity.AnalysisEntry, len(snap.Analyses))
	for _, se := range snap.Analyses {
		addr, err := parseHexAddress(se.Address)
		if err != nil {
			return fmt.Errorf("entry %q: %w", se.Key, err)
		}
		related := make([]uint64, 0, len(se.RelatedAddresses))
		for _, r := range se.RelatedAddresses {
			a, err := parseHexAddress(r)
			if err != nil {
				return fmt.Errorf("entry %q related address: %w", se.Key, err)
			}
			related = append(related, a)
		}
		entries[se.Key] = &entity.AnalysisEntry{
			Key:              se.Key,
			Content:          se.Content,
			Category:         entity.AnalysisCategory(se.Type),
			Address:          nonZeroPtr(se.Address, addr),
			RelatedAddresses: related,
			Timestamp:        time.Unix(se.Timestamp, 0),
		}
	}

	s.version++
	for _, e := range entries {
		e.Version = s.version
	}
	s.entries = entries
	return nil
}

func nonZeroPtr(raw string, v uint64) *uint64 {
	if raw == "" {
		return nil
	}
	return &v
}

func parseHexAddress(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	var v uint64
	_, err := fmt.Sscanf(s, "%x", &v)
	return v, err
}

// Version returns the current monotonic mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of entries currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// NearbyFunctions is the proximity-index supplement (original_source's
// FunctionMemory.distance_from_anchor concept, §2.2): entries whose own
// address or related addresses include one within radius of address,
// nearest first. Additive —
// no invariant in spec.md depends on it.
func (s *Store) NearbyFunctions(address uint64, radius uint64) []entity.AnalysisEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry entity.AnalysisEntry
		dist  uint64
	}
	var candidates []scored
	for _, e := range s.entries {
		best := ^uint64(0)
		addrs := e.RelatedAddresses
		if e.Address != nil {
			addrs = append(addrs, *e.Address)
		}
		for _, a := range addrs {
			d := diff(a, address)
			if d < best {
				best = d
			}
		}
		if best <= radius {
			candidates = append(candidates, scored{entry: *e, dist: best})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	out := make([]entity.AnalysisEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

func diff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
