package refdata

import (
	"errors"
	"fmt"
	"time"
)

// ErrConflict marks reference-data conflicts: duplicate primary keys on
// create, or deletion of an entry still referenced elsewhere.
var ErrConflict = errors.New("reference data conflict")

// ErrNotFound marks lookups against missing reference entries.
var ErrNotFound = errors.New("reference entry not found")

// CreateProvider adds a provider. Fails with ErrConflict if the ID exists.
func (r *Registry) CreateProvider(p Provider) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Providers[p.ID]; ok {
			return fmt.Errorf("%w: provider %s already exists", ErrConflict, p.ID)
		}
		snap.Providers[p.ID] = p
		return nil
	})
}

// UpdateProvider replaces a provider entry.
func (r *Registry) UpdateProvider(p Provider) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Providers[p.ID]; !ok {
			return fmt.Errorf("%w: provider %s", ErrNotFound, p.ID)
		}
		snap.Providers[p.ID] = p
		return nil
	})
}

// DeleteProvider removes a provider. A provider named in a tier's allowed
// list is in use and cannot be deleted.
func (r *Registry) DeleteProvider(id string) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Providers[id]; !ok {
			return fmt.Errorf("%w: provider %s", ErrNotFound, id)
		}
		for _, t := range snap.Tiers {
			for _, allowed := range t.ProvidersAllowed {
				if allowed == id {
					return fmt.Errorf("%w: provider %s referenced by tier %s", ErrConflict, id, t.ID)
				}
			}
		}
		delete(snap.Providers, id)
		return nil
	})
}

// CreateTier adds a customer tier.
func (r *Registry) CreateTier(t Tier) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Tiers[t.ID]; ok {
			return fmt.Errorf("%w: tier %s already exists", ErrConflict, t.ID)
		}
		snap.Tiers[t.ID] = t
		return nil
	})
}

// UpdateTier replaces a tier entry.
func (r *Registry) UpdateTier(t Tier) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Tiers[t.ID]; !ok {
			return fmt.Errorf("%w: tier %s", ErrNotFound, t.ID)
		}
		snap.Tiers[t.ID] = t
		return nil
	})
}

// CreateSegment adds a pricing segment.
func (r *Registry) CreateSegment(s Segment) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Segments[s.ID]; ok {
			return fmt.Errorf("%w: segment %s already exists", ErrConflict, s.ID)
		}
		snap.Segments[s.ID] = s
		return nil
	})
}

// UpdateSegment replaces a segment entry.
func (r *Registry) UpdateSegment(s Segment) error {
	return r.mutate(func(snap *Snapshot) error {
		if _, ok := snap.Segments[s.ID]; !ok {
			return fmt.Errorf("%w: segment %s", ErrNotFound, s.ID)
		}
		snap.Segments[s.ID] = s
		return nil
	})
}

// mutate copies the current snapshot, applies fn to the copy, swaps it in
// and persists the affected documents. Readers never observe a partially
// mutated table.
func (r *Registry) mutate(fn func(*Snapshot) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := r.snap.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	next.LoadedAt = time.Now().UTC()
	r.snap.Store(next)

	if err := r.persist(next); err != nil {
		r.logger.Warn("refdata.persist_failed")
	}
	return nil
}

func (r *Registry) persist(snap *Snapshot) error {
	if err := r.writeDoc("providers.json", providersDoc{Providers: snap.ProviderList()}); err != nil {
		return err
	}
	if err := r.writeDoc("tiers.json", tiersDoc{Tiers: snap.TierList(), AmountTiers: snap.AmountTiers}); err != nil {
		return err
	}
	return r.writeDoc("segments.json", segmentsDoc{Segments: snap.SegmentList()})
}

// clone deep-copies the mutable tables; immutable slices are shared.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Providers:       make(map[string]Provider, len(s.Providers)),
		Tiers:           make(map[string]Tier, len(s.Tiers)),
		Segments:        make(map[string]Segment, len(s.Segments)),
		AmountTiers:     s.AmountTiers,
		Categories:      s.Categories,
		CategoryMarkups: s.CategoryMarkups,
		CBDCs:           s.CBDCs,
		Stablecoins:     s.Stablecoins,
		Ramps:           s.Ramps,
		Rails:           s.Rails,
		NexusFiats:      s.NexusFiats,
		AtomicSwaps:     s.AtomicSwaps,
		LoadedAt:        s.LoadedAt,
	}
	for k, v := range s.Providers {
		next.Providers[k] = v
	}
	for k, v := range s.Tiers {
		next.Tiers[k] = v
	}
	for k, v := range s.Segments {
		next.Segments[k] = v
	}
	return next
}
