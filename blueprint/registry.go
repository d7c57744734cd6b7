package blueprint

import (
	"context"
	"fmt"
	"sync"

	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
)

// Registry is an append-only, content-addressed store of blueprints.
//
// Blueprints are persisted in the journal and cached in memory once loaded.
// Because blueprints are immutable the cache never needs to be invalidated.
type Registry struct {
	// DataStore is the data-store in which blueprints are persisted.
	DataStore persistence.DataStore

	// Marshaler is used to marshal blueprints to their binary representation.
	// If it is nil, DefaultMarshaler is used.
	Marshaler marshalkit.ValueMarshaler

	// Logger is the target for log messages about registered blueprints.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	m     sync.RWMutex
	cache map[string]Blueprint
}

// Register adds a blueprint to the registry and returns its ID.
//
// Registering a blueprint that is already registered has no effect.
func (r *Registry) Register(ctx context.Context, bp Blueprint) (string, error) {
	if err := bp.Validate(); err != nil {
		return "", err
	}

	id := bp.ID()

	if _, ok := r.cached(id); ok {
		return id, nil
	}

	p, err := r.marshaler().Marshal(bp)
	if err != nil {
		return "", fmt.Errorf("unable to marshal blueprint %s: %w", bp.Name, err)
	}

	if err := r.DataStore.Persist(
		ctx,
		persistence.Batch{
			persistence.SaveBlueprint{
				Blueprint: persistence.BlueprintRecord{
					ID:     id,
					Packet: p,
				},
			},
		},
	); err != nil {
		return "", err
	}

	r.store(id, bp)

	logging.Log(
		r.Logger,
		"registered blueprint '%s' (%s)",
		bp.Name,
		id,
	)

	return id, nil
}

// Get returns the blueprint with the given ID.
//
// It returns an UnknownBlueprintError if no such blueprint is registered.
func (r *Registry) Get(ctx context.Context, id string) (Blueprint, error) {
	if bp, ok := r.cached(id); ok {
		return bp, nil
	}

	rec, ok, err := r.DataStore.LoadBlueprint(ctx, id)
	if err != nil {
		return Blueprint{}, err
	}

	if !ok {
		return Blueprint{}, UnknownBlueprintError{ID: id}
	}

	bp, err := unmarshal(r.marshaler(), rec.Packet)
	if err != nil {
		return Blueprint{}, fmt.Errorf("unable to unmarshal blueprint %s: %w", id, err)
	}

	r.store(id, bp)

	return bp, nil
}

// All returns every registered blueprint, keyed by ID.
func (r *Registry) All(ctx context.Context) (map[string]Blueprint, error) {
	records, err := r.DataStore.LoadBlueprints(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]Blueprint, len(records))

	for _, rec := range records {
		bp, err := unmarshal(r.marshaler(), rec.Packet)
		if err != nil {
			return nil, fmt.Errorf("unable to unmarshal blueprint %s: %w", rec.ID, err)
		}

		r.store(rec.ID, bp)
		result[rec.ID] = bp
	}

	return result, nil
}

func (r *Registry) cached(id string) (Blueprint, bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	bp, ok := r.cache[id]
	return bp, ok
}

func (r *Registry) store(id string, bp Blueprint) {
	r.m.Lock()
	defer r.m.Unlock()

	if r.cache == nil {
		r.cache = map[string]Blueprint{}
	}

	r.cache[id] = bp
}

func (r *Registry) marshaler() marshalkit.ValueMarshaler {
	if r.Marshaler != nil {
		return r.Marshaler
	}

	return DefaultMarshaler
}
