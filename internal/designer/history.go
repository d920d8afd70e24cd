package designer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/product-designer/backend/internal/models"
)

// SnapshotVersion tags the persisted snapshot format.
const SnapshotVersion = 1

type snapshotDoc struct {
	Version  int                  `json:"version"`
	Elements []models.ElementJSON `json:"elements"`
}

// ledger is the undo/redo history of one view. current mirrors the live
// scene as of the last recorded or replayed state.
type ledger struct {
	undo       [][]byte
	redo       [][]byte
	current    []byte
	processing bool
}

func (s *Stage) snapshot(v *models.View) ([]byte, error) {
	doc := snapshotDoc{Version: SnapshotVersion, Elements: make([]models.ElementJSON, 0, len(v.Elements))}
	for _, el := range v.Elements {
		ej, err := el.JSON()
		if err != nil {
			return nil, err
		}
		doc.Elements = append(doc.Elements, ej)
	}
	return json.Marshal(doc)
}

// recordDirty pushes a history entry for every view touched by the current
// call.
func (s *Stage) recordDirty() {
	if len(s.dirty) == 0 {
		return
	}
	touched := sortedKeys(s.dirty)
	clear(s.dirty)
	if s.holdHistory > 0 || !s.opts.HistoryEnabled {
		return
	}
	for _, idx := range touched {
		if idx < len(s.product.Views) && idx < len(s.ledgers) {
			s.record(s.product.Views[idx], s.ledgers[idx])
		}
	}
}

func (s *Stage) record(v *models.View, l *ledger) {
	if l.processing {
		return
	}
	snap, err := s.snapshot(v)
	if err != nil {
		Logger().Warn("history snapshot failed", "view", v.Index, "error", err)
		return
	}
	if bytes.Equal(snap, l.current) {
		return
	}
	if l.current != nil {
		l.undo = append(l.undo, l.current)
	}
	l.current = snap
	l.redo = nil
	s.notify(models.Notification{Kind: models.NotifyHistoryChange, View: v.Index})
}

// Undo restores the previous recorded state of a view.
func (s *Stage) Undo(view int) error {
	return s.do(func() error {
		v, l, err := s.ledger(view)
		if err != nil {
			return err
		}
		if len(l.undo) == 0 {
			return ErrNothingToUndo
		}
		return s.step(v, l, &l.undo, &l.redo, models.NotifyHistoryUndo)
	})
}

// Redo re-applies the most recently undone state of a view.
func (s *Stage) Redo(view int) error {
	return s.do(func() error {
		v, l, err := s.ledger(view)
		if err != nil {
			return err
		}
		if len(l.redo) == 0 {
			return ErrNothingToRedo
		}
		return s.step(v, l, &l.redo, &l.undo, models.NotifyHistoryRedo)
	})
}

// step pops from one stack, pushes the live state onto the other and replays
// the popped snapshot.
func (s *Stage) step(v *models.View, l *ledger, from, to *[][]byte, kind models.NotificationKind) error {
	live, err := s.snapshot(v)
	if err != nil {
		return err
	}
	l.processing = true
	defer func() { l.processing = false }()

	stack := *from
	target := stack[len(stack)-1]
	if err := s.replay(v, target); err != nil {
		return err
	}
	*from = stack[:len(stack)-1]
	*to = append(*to, live)
	l.current = target
	s.notify(models.Notification{Kind: kind, View: v.Index})
	return nil
}

// ClearHistory empties both stacks of a view without touching the scene.
func (s *Stage) ClearHistory(view int) error {
	return s.do(func() error {
		v, l, err := s.ledger(view)
		if err != nil {
			return err
		}
		snap, err := s.snapshot(v)
		if err != nil {
			return err
		}
		l.undo, l.redo, l.current = nil, nil, snap
		s.notify(models.Notification{Kind: models.NotifyHistoryClear, View: v.Index})
		return nil
	})
}

// CanUndo reports whether the view has undo entries.
func (s *Stage) CanUndo(view int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, l, err := s.ledger(view)
	return err == nil && len(l.undo) > 0
}

// CanRedo reports whether the view has redo entries.
func (s *Stage) CanRedo(view int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, l, err := s.ledger(view)
	return err == nil && len(l.redo) > 0
}

func (s *Stage) ledger(view int) (*models.View, *ledger, error) {
	v, err := s.view(view)
	if err != nil {
		return nil, nil, err
	}
	return v, s.ledgers[view], nil
}

// replay replaces the view's elements with a snapshot, bypassing the option
// pipeline. Element ids are preserved.
func (s *Stage) replay(v *models.View, data []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if doc.Version > SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than %d", doc.Version, SnapshotVersion)
	}

	restored := make([]*models.Element, 0, len(doc.Elements))
	for _, ej := range doc.Elements {
		el, err := models.ElementFromJSON(ej, v.Index)
		if err != nil {
			Logger().Warn("snapshot element skipped", "title", ej.Title, "view", v.Index, "error", err)
			continue
		}
		if el.ID == "" {
			el.ID = s.newID("")
			el.Params.ID = el.ID
		}
		restored = append(restored, el)
	}

	previous := make(map[string]*models.Element, len(v.Elements))
	for _, el := range v.Elements {
		previous[el.ID] = el
		s.sched.cancel(el.ID)
		s.links.remove(el)
	}

	v.Elements = restored
	for _, el := range restored {
		if prev := previous[el.ID]; prev != nil {
			el.Runtime.OutOfBounds = prev.Runtime.OutOfBounds
			el.Runtime.BorderColor = prev.Runtime.BorderColor
		}
		s.links.add(el)
	}
	for _, el := range restored {
		s.checkContainment(v, el)
	}
	if s.selected != "" {
		if el, _ := v.ElementByID(s.selected); el == nil {
			if other, _ := s.find(s.selected); other == nil {
				s.selected = ""
			}
		}
	}
	return nil
}
