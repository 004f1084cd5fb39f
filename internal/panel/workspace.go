package panel

import (
	"fmt"
	"sort"
	"sync"
)

// Workspace is the list of administration pages.
type Workspace struct {
	mu     sync.RWMutex
	panels map[string]Descriptor
}

func NewWorkspace() *Workspace {
	return &Workspace{panels: make(map[string]Descriptor)}
}

func (w *Workspace) Register(desc Descriptor) error {
	desc = desc.WithDefaults()
	if err := desc.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.panels[desc.ID]; exists {
		return fmt.Errorf("panel %s already registered", desc.ID)
	}
	w.panels[desc.ID] = desc
	return nil
}

func (w *Workspace) Lookup(id string) (Descriptor, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	desc, ok := w.panels[id]
	return desc, ok
}

// Panels returns every page ordered by path, position and title.
func (w *Workspace) Panels() []Descriptor {
	w.mu.RLock()
	out := make([]Descriptor, 0, len(w.panels))
	for _, desc := range w.panels {
		out = append(out, desc)
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.Title < b.Title
	})
	return out
}
