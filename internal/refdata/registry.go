package refdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
)

// Registry owns every reference table. Readers take the current immutable
// Snapshot; reloads and admin mutations build a fresh snapshot and swap it
// in atomically under a single writer lock.
type Registry struct {
	snap    atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	dataDir string
	logger  *zap.Logger
}

type providersDoc struct {
	Providers []Provider `json:"providers"`
}

type tiersDoc struct {
	Tiers       []Tier       `json:"tiers"`
	AmountTiers []AmountTier `json:"amount_tiers"`
}

type segmentsDoc struct {
	Segments []Segment `json:"segments"`
}

type categoriesDoc struct {
	Categories map[CurrencyCategory]struct {
		Currencies []string       `json:"currencies"`
		Markup     CategoryMarkup `json:"markup"`
	} `json:"categories"`
}

type digitalDoc struct {
	CBDCs       []CBDC           `json:"cbdc"`
	Stablecoins []Stablecoin     `json:"stablecoins"`
	Ramps       []Ramp           `json:"ramps"`
	Rails       []Rail           `json:"rails"`
	NexusFiats  []string         `json:"nexus_fiats"`
	AtomicSwaps []AtomicSwapPair `json:"atomic_swaps"`
}

// NewRegistry loads the reference tables from dataDir, falling back to the
// compiled-in defaults for any document that does not exist.
func NewRegistry(dataDir string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{dataDir: dataDir, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Snapshot returns the current reference-table generation. The returned
// value is immutable; hold it for the duration of the request.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Reload rebuilds the snapshot from the data directory and swaps it in.
// Concurrent readers observe either the old or the new generation.
func (r *Registry) Reload() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap, err := r.build()
	if err != nil {
		return err
	}
	r.snap.Store(snap)
	metrics.SetLastReload("reference", snap.LoadedAt)
	r.logger.Info("refdata.reloaded",
		zap.Int("providers", len(snap.Providers)),
		zap.Int("tiers", len(snap.Tiers)),
		zap.Int("segments", len(snap.Segments)),
		zap.Int("cbdcs", len(snap.CBDCs)),
		zap.Int("stablecoins", len(snap.Stablecoins)),
	)
	return nil
}

func (r *Registry) build() (*Snapshot, error) {
	snap := defaultSnapshot()

	var pdoc providersDoc
	if ok, err := r.readDoc("providers.json", &pdoc); err != nil {
		return nil, err
	} else if ok {
		snap.Providers = make(map[string]Provider, len(pdoc.Providers))
		for _, p := range pdoc.Providers {
			snap.Providers[p.ID] = p
		}
	}

	var tdoc tiersDoc
	if ok, err := r.readDoc("tiers.json", &tdoc); err != nil {
		return nil, err
	} else if ok {
		if len(tdoc.Tiers) > 0 {
			snap.Tiers = make(map[string]Tier, len(tdoc.Tiers))
			for _, t := range tdoc.Tiers {
				snap.Tiers[t.ID] = t
			}
		}
		if len(tdoc.AmountTiers) > 0 {
			snap.AmountTiers = tdoc.AmountTiers
		}
	}

	var sdoc segmentsDoc
	if ok, err := r.readDoc("segments.json", &sdoc); err != nil {
		return nil, err
	} else if ok {
		snap.Segments = make(map[string]Segment, len(sdoc.Segments))
		for _, s := range sdoc.Segments {
			snap.Segments[s.ID] = s
		}
	}

	var cdoc categoriesDoc
	if ok, err := r.readDoc("currency_categories.json", &cdoc); err != nil {
		return nil, err
	} else if ok {
		snap.Categories = make(map[string]CurrencyCategory)
		snap.CategoryMarkups = make(map[CurrencyCategory]CategoryMarkup)
		for cat, def := range cdoc.Categories {
			snap.CategoryMarkups[cat] = def.Markup
			for _, ccy := range def.Currencies {
				snap.Categories[ccy] = cat
			}
		}
	}

	var ddoc digitalDoc
	if ok, err := r.readDoc("digital.json", &ddoc); err != nil {
		return nil, err
	} else if ok {
		if len(ddoc.CBDCs) > 0 {
			snap.CBDCs = make(map[string]CBDC, len(ddoc.CBDCs))
			for _, c := range ddoc.CBDCs {
				snap.CBDCs[c.Code] = c
			}
		}
		if len(ddoc.Stablecoins) > 0 {
			snap.Stablecoins = make(map[string]Stablecoin, len(ddoc.Stablecoins))
			for _, s := range ddoc.Stablecoins {
				snap.Stablecoins[s.Code] = s
			}
		}
		if len(ddoc.Ramps) > 0 {
			snap.Ramps = ddoc.Ramps
		}
		if len(ddoc.Rails) > 0 {
			snap.Rails = make(map[string]Rail, len(ddoc.Rails))
			for _, rail := range ddoc.Rails {
				snap.Rails[rail.Mechanism] = rail
			}
		}
		if len(ddoc.NexusFiats) > 0 {
			snap.NexusFiats = make(map[string]bool, len(ddoc.NexusFiats))
			for _, f := range ddoc.NexusFiats {
				snap.NexusFiats[f] = true
			}
		}
		if len(ddoc.AtomicSwaps) > 0 {
			snap.AtomicSwaps = ddoc.AtomicSwaps
		}
	}

	snap.LoadedAt = time.Now().UTC()
	return snap, nil
}

// readDoc reads and decodes one JSON document. The boolean reports whether
// the file existed.
func (r *Registry) readDoc(name string, dest any) (bool, error) {
	if r.dataDir == "" {
		return false, nil
	}
	path := filepath.Join(r.dataDir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// writeDoc persists one JSON document, best effort atomic via temp rename.
func (r *Registry) writeDoc(name string, doc any) error {
	if r.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(r.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
