package revkit

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/c-pro/geche"
	"github.com/tidwall/gjson"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

type entity interface {
	ID() string
	OnUpdate(fn func()) (remove func())
	markDeleted()
	update(patch models.Patch, clear []string) error
}

// Manager is a keyed collection of entities. Listeners registered with
// OnUpdate run when an entity is added, changed or removed.
type Manager[E entity] struct {
	client *Client
	build  func(data []byte) (E, error)

	mu      sync.Mutex
	cache   *geche.MapCache[string, E] // set once; safe for concurrent use
	unsub   map[string]func()
	updates notifier[E]
}

func newManager[E entity](c *Client, build func(data []byte) (E, error)) *Manager[E] {
	return &Manager[E]{
		client: c,
		build:  build,
		cache:  geche.NewMapCache[string, E](),
		unsub:  make(map[string]func()),
	}
}

// Get returns the entity or the zero value (nil) when it is not cached.
func (m *Manager[E]) Get(id string) E {
	e, _ := m.cache.Get(id)
	return e
}

func (m *Manager[E]) Has(id string) bool {
	_, err := m.cache.Get(id)
	return err == nil
}

func (m *Manager[E]) Len() int {
	return m.cache.Len()
}

// Items returns a snapshot of the collection ordered by ID, which is
// creation order for ULID keys.
func (m *Manager[E]) Items() []E {
	snap := m.cache.Snapshot()
	items := make([]E, 0, len(snap))
	for _, e := range snap {
		items = append(items, e)
	}
	slices.SortFunc(items, func(a, b E) int { return cmp.Compare(a.ID(), b.ID()) })
	return items
}

// Find returns the first entity, in ID order, that matches fn.
func (m *Manager[E]) Find(fn func(E) bool) E {
	for _, e := range m.Items() {
		if fn(e) {
			return e
		}
	}
	var zero E
	return zero
}

func (m *Manager[E]) Filter(fn func(E) bool) []E {
	var out []E
	for _, e := range m.Items() {
		if fn(e) {
			out = append(out, e)
		}
	}
	return out
}

// Sort returns a snapshot ordered by cmp. Ties keep ID order.
func (m *Manager[E]) Sort(cmp func(a, b E) int) []E {
	items := m.Items()
	slices.SortStableFunc(items, cmp)
	return items
}

// Map applies fn to a snapshot of m.
func Map[E entity, R any](m *Manager[E], fn func(E) R) []R {
	items := m.Items()
	out := make([]R, len(items))
	for i, e := range items {
		out[i] = fn(e)
	}
	return out
}

// OnUpdate registers fn for additions, deletions and changes of any entity
// in the collection.
func (m *Manager[E]) OnUpdate(fn func(E)) (remove func()) {
	return m.updates.add(fn)
}

// Construct adds the record to the collection, or merges it into the
// cached entity with the same ID. Calling it twice with the same ID leaves
// one entity holding the latest fields.
func (m *Manager[E]) Construct(data json.RawMessage) (E, error) {
	e, _, err := m.upsert(data)
	return e, err
}

func (m *Manager[E]) upsert(data json.RawMessage) (e E, created bool, err error) {
	id := keyOf(data)
	if id == "" {
		return e, false, fmt.Errorf("record has no _id")
	}

	m.mu.Lock()
	if existing, err := m.cache.Get(id); err == nil {
		m.mu.Unlock()
		var patch models.Patch
		if err := json.Unmarshal(data, &patch); err != nil {
			return existing, false, err
		}
		return existing, false, existing.update(patch, nil)
	}

	e, err = m.build(data)
	if err != nil {
		m.mu.Unlock()
		return e, false, err
	}
	m.cache.Set(id, e)
	m.unsub[id] = e.OnUpdate(func() { m.updates.emit(e) })
	m.mu.Unlock()

	m.updates.emit(e)
	return e, true, nil
}

// Delete marks the entity deleted and removes it. It reports whether the
// entity was present.
func (m *Manager[E]) Delete(id string) bool {
	m.mu.Lock()
	e, err := m.cache.Get(id)
	if err != nil {
		m.mu.Unlock()
		return false
	}
	e.markDeleted()
	if unsub, ok := m.unsub[id]; ok {
		unsub()
		delete(m.unsub, id)
	}
	_ = m.cache.Del(id)
	m.mu.Unlock()

	m.updates.emit(e)
	return true
}

// clear empties the collection in place without notifying listeners.
// The cache pointer never changes, so readers need no lock.
func (m *Manager[E]) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.cache.Snapshot() {
		e.markDeleted()
		if unsub, ok := m.unsub[id]; ok {
			unsub()
		}
		_ = m.cache.Del(id)
	}
	m.unsub = make(map[string]func())
}

// keyOf reads the record's ID. Members are keyed by the user half of their
// composite ID.
func keyOf(data []byte) string {
	id := gjson.GetBytes(data, "_id")
	if id.IsObject() {
		return id.Get("user").String()
	}
	return id.String()
}
