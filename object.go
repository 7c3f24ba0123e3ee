package revkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

type keyed interface {
	Key() string
}

// object is the state shared by every entity: the raw record as the server
// sent it, a typed view decoded from that record, and update listeners.
type object[T keyed] struct {
	client *Client

	mu   sync.RWMutex
	raw  map[string]json.RawMessage
	view T

	deleted atomic.Bool
	updates notifier[struct{}]
}

func (o *object[T]) init(c *Client, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode %T: %w", o.view, err)
	}
	var view T
	if err := json.Unmarshal(data, &view); err != nil {
		return fmt.Errorf("decode %T: %w", view, err)
	}
	o.client = c
	o.raw = raw
	o.view = view
	return nil
}

// Source returns a copy of the decoded record.
func (o *object[T]) Source() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.view
}

// Raw returns the record as JSON, including fields this package does not
// decode.
func (o *object[T]) Raw() json.RawMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	data, _ := json.Marshal(o.raw)
	return data
}

func (o *object[T]) ID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.view.Key()
}

// CreatedAt decodes the timestamp embedded in the ID. IDs that are not
// ULIDs give the Unix epoch.
func (o *object[T]) CreatedAt() time.Time {
	return idTime(o.ID())
}

// Deleted reports whether the entity was removed from its manager. Callers
// holding on to an entity use it to detect staleness.
func (o *object[T]) Deleted() bool {
	return o.deleted.Load()
}

func (o *object[T]) markDeleted() {
	o.deleted.Store(true)
}

// OnUpdate registers fn to run after every change to this entity.
func (o *object[T]) OnUpdate(fn func()) (remove func()) {
	return o.updates.add(func(struct{}) { fn() })
}

// update removes the fields named in clear, then overwrites the top-level
// keys in patch and re-decodes the view. Unknown keys are kept.
func (o *object[T]) update(patch models.Patch, clear []string) error {
	o.mu.Lock()
	raw := maps.Clone(o.raw)
	if raw == nil {
		raw = make(map[string]json.RawMessage)
	}
	for _, name := range clear {
		if err := clearPath(raw, models.FieldPath(name)); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	maps.Copy(raw, patch)

	var view T
	data, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(data, &view)
	}
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("update %T: %w", view, err)
	}
	o.raw = raw
	o.view = view
	o.mu.Unlock()

	o.updates.emit(struct{}{})
	return nil
}

// replace swaps the whole record, so fields missing from data disappear.
// Nothing is emitted when data matches the current record.
func (o *object[T]) replace(data json.RawMessage) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode %T: %w", o.view, err)
	}
	var view T
	if err := json.Unmarshal(data, &view); err != nil {
		return fmt.Errorf("decode %T: %w", view, err)
	}

	o.mu.Lock()
	if maps.EqualFunc(o.raw, raw, func(a, b json.RawMessage) bool { return bytes.Equal(a, b) }) {
		o.mu.Unlock()
		return nil
	}
	o.raw = raw
	o.view = view
	o.mu.Unlock()

	o.updates.emit(struct{}{})
	return nil
}

// rawField returns one top-level field of the record, nil when absent.
func (o *object[T]) rawField(key string) json.RawMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.raw[key]
}

// mutate applies fn to a copy of the decoded record and stores the result.
// Used by frames that edit nested state (reactions, appended embeds).
func (o *object[T]) mutate(fields []string, fn func(v *T)) error {
	o.mu.RLock()
	view := o.view
	o.mu.RUnlock()

	fn(&view)
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	// fields are JSON keys already, so they pass through FieldPath as-is.
	patch := make(models.Patch, len(fields))
	var clear []string
	for _, f := range fields {
		if v, ok := all[f]; ok {
			patch[f] = v
		} else {
			clear = append(clear, f)
		}
	}
	return o.update(patch, clear)
}

func clearPath(raw map[string]json.RawMessage, path []string) error {
	switch len(path) {
	case 0:
		return nil
	case 1:
		delete(raw, path[0])
		return nil
	}

	inner, ok := raw[path[0]]
	if !ok || string(inner) == "null" {
		return nil
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(inner, &nested); err != nil {
		return err
	}
	if err := clearPath(nested, path[1:]); err != nil {
		return err
	}
	data, err := json.Marshal(nested)
	if err != nil {
		return err
	}
	raw[path[0]] = data
	return nil
}

func idTime(id string) time.Time {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return ulid.Time(u.Time()).UTC()
}

func rawJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
