package index

import (
	"context"

	"github.com/bakerykit/bakery/index/cache"
	"github.com/bakerykit/bakery/interaction"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/process"
)

// handle is the Local index's implementation of Handle.
type handle struct {
	index       *Local
	instanceID  string
	blueprintID string
}

func (h handle) InstanceID() string {
	return h.instanceID
}

func (h handle) BlueprintID() string {
	return h.blueprintID
}

func (h handle) Fire(ctx context.Context, ev process.SensoryEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	return h.do(ctx, func(rec *cache.Record[*live]) error {
		lv := rec.Instance

		if !lv.bp.HasEvent(ev.Name) {
			rec.KeepAlive()
			return process.UnknownEventError{
				InstanceID: h.instanceID,
				Name:       ev.Name,
			}
		}

		return h.index.append(ctx, rec, process.EventFired{
			Name:        ev.Name,
			Ingredients: ev.Ingredients,
		})
	})
}

func (h handle) Execute(ctx context.Context, name string) (map[string]string, error) {
	var output map[string]string

	err := h.do(ctx, func(rec *cache.Record[*live]) error {
		lv := rec.Instance

		c, ok := lv.capabilities[name]
		if !ok || !lv.bp.HasInteraction(name) {
			rec.KeepAlive()
			return interaction.UnknownInteractionError{Name: name}
		}

		out, err := c.Execute(ctx, h.instanceID, lv.instance.Ingredients())
		if err != nil {
			// Nothing has been journaled, so the in-memory state is still
			// current.
			rec.KeepAlive()
			return err
		}

		if err := h.index.append(ctx, rec, process.InteractionExecuted{
			Interaction: name,
			Output:      out,
		}); err != nil {
			return err
		}

		output = make(map[string]string, len(out))
		for k, v := range out {
			output[k] = v
		}

		return nil
	})

	return output, err
}

func (h handle) Snapshot(ctx context.Context) (process.Snapshot, error) {
	var s process.Snapshot

	err := h.do(ctx, func(rec *cache.Record[*live]) error {
		s = rec.Instance.instance.Snapshot(h.index.FilteredIngredientNames)
		rec.KeepAlive()
		return nil
	})

	return s, err
}

// do calls fn with the instance's cache record locked.
//
// fn must call rec.KeepAlive() unless the in-memory state of the instance may
// no longer match the journal.
func (h handle) do(
	ctx context.Context,
	fn func(rec *cache.Record[*live]) error,
) error {
	rec, err := h.index.acquire(ctx, h.instanceID, h.blueprintID, false)
	if err != nil {
		return err
	}
	defer rec.Release()

	return fn(rec)
}

// append journals an event for a live instance and applies it to the
// in-memory state.
func (l *Local) append(
	ctx context.Context,
	rec *cache.Record[*live],
	ev interface{},
) error {
	in := rec.Instance.instance

	p, err := l.marshaler().Marshal(ev)
	if err != nil {
		rec.KeepAlive()
		return err
	}

	if err := l.persist(
		ctx,
		in.ID,
		persistence.AppendEvent{
			Event: persistence.Event{
				InstanceID: in.ID,
				Sequence:   in.Version,
				RecordedAt: l.now(),
				Packet:     p,
			},
		},
	); err != nil {
		return err
	}

	if err := in.Apply(ev); err != nil {
		return err
	}

	rec.KeepAlive()

	return nil
}
