// Package speakermem implements the speaker memory: a small, persistent
// mapping from lowercase reference keys ("senator cramer") to display names
// ("Senator Cramer").
//
// A [Memory] is loaded once at start-up with [Open], which merges the
// persisted entries over a fixed set of [Defaults]. Every new reference added
// with [Memory.Remember] is saved through the backing [Store] immediately;
// [Memory.Flush] saves unconditionally and is meant for shutdown.
//
// Keys are always stored lowercase; display names keep their casing. Entries
// keep their insertion order, which is also the order in which they are saved.
package speakermem

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Reference is a single speaker memory entry.
type Reference struct {
	// Key is the lowercase canonical identifier, e.g. "senator cramer".
	Key string

	// Name is the human-formatted label, e.g. "Senator Cramer".
	Name string
}

// Defaults are the entries every memory starts with. Persisted entries with
// the same key take precedence.
var Defaults = []Reference{
	{Key: "chairman", Name: "Chairman Smith"},
	{Key: "ranking member", Name: "Ranking Member Jones"},
	{Key: "senator cramer", Name: "Senator Cramer"},
	{Key: "senator warren", Name: "Senator Warren"},
}

// Store persists the full list of references. Implementations must be safe
// for concurrent use.
type Store interface {
	// Load returns the persisted references. A store that has never been
	// saved returns no references and no error.
	Load(ctx context.Context) ([]Reference, error)

	// Save replaces the persisted references with refs.
	Save(ctx context.Context, refs []Reference) error
}

// Memory is the in-process speaker memory. It is safe for concurrent use.
type Memory struct {
	store Store

	mu    sync.RWMutex
	refs  []Reference
	index map[string]int
}

// Open loads the references from store and merges them over [Defaults]:
// persisted values win on key collisions and defaults fill the gaps.
func Open(ctx context.Context, store Store) (*Memory, error) {
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("speakermem: load: %w", err)
	}

	m := &Memory{
		store: store,
		index: make(map[string]int, len(Defaults)+len(loaded)),
	}
	for _, r := range Defaults {
		m.put(r)
	}
	for _, r := range loaded {
		m.put(r)
	}
	return m, nil
}

// put inserts or overwrites r. The caller must hold mu or own m exclusively.
func (m *Memory) put(r Reference) {
	r.Key = NormalizeKey(r.Key)
	r.Name = NormalizeName(r.Name)
	if r.Key == "" {
		return
	}
	if i, ok := m.index[r.Key]; ok {
		m.refs[i].Name = r.Name
		return
	}
	m.index[r.Key] = len(m.refs)
	m.refs = append(m.refs, r)
}

// Remember inserts key with the given display name when key is not yet
// known, and saves the memory right away. It reports whether an insertion
// took place; remembering a known key is a no-op and does not save.
//
// When the save fails the insertion is rolled back and the error returned.
func (m *Memory) Remember(ctx context.Context, key, name string) (bool, error) {
	key = NormalizeKey(key)
	if key == "" {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[key]; ok {
		return false, nil
	}
	m.index[key] = len(m.refs)
	m.refs = append(m.refs, Reference{Key: key, Name: NormalizeName(name)})

	if err := m.store.Save(ctx, slices.Clone(m.refs)); err != nil {
		m.refs = m.refs[:len(m.refs)-1]
		delete(m.index, key)
		return false, fmt.Errorf("speakermem: remember %q: %w", key, err)
	}
	return true, nil
}

// Contains reports whether key (case-insensitive) is known.
func (m *Memory) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[NormalizeKey(key)]
	return ok
}

// Lookup returns the display name stored for key (case-insensitive). The
// engine matches by substring through [Memory.References]; Lookup serves
// exact inspection by hosts and tests.
func (m *Memory) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[NormalizeKey(key)]
	if !ok {
		return "", false
	}
	return m.refs[i].Name, true
}

// References returns a copy of all entries in insertion order.
func (m *Memory) References() []Reference {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.refs)
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}

// Flush saves all entries unconditionally.
func (m *Memory) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, slices.Clone(m.refs)); err != nil {
		return fmt.Errorf("speakermem: flush: %w", err)
	}
	return nil
}

// NormalizeKey lowercases key and collapses every whitespace run, line
// breaks included, into a single space.
func NormalizeKey(key string) string {
	return strings.ToLower(NormalizeName(key))
}

// NormalizeName trims name and collapses its internal whitespace into single
// spaces, so every entry fits on one line of the memory file.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
