// Package ledger applies per-action completion changes to a task's action list.
//
// Every operation returns a new slice and leaves its input untouched. Exactly
// one entry, matched by id, is replaced; the others keep their order and value.
package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	"coinline/internal/config"
	"coinline/internal/domain"
)

// Ledger validates action data against the configured action type catalog.
// An empty catalog accepts any type and any data.
type Ledger struct {
	Types map[string]config.ActionType
}

func New(types map[string]config.ActionType) Ledger {
	return Ledger{Types: types}
}

// Complete marks actionID completed by actor at the given time and merges patch
// into the action's data, patch keys overriding. Completing an already
// completed action overwrites its completion stamp.
func (l Ledger) Complete(taskID string, actions []domain.Action, actionID, actor string, at int64, patch domain.ActionData) ([]domain.Action, error) {
	i, err := indexOf(taskID, actions, actionID)
	if err != nil {
		return nil, err
	}
	cur := actions[i]
	if err := l.ValidateData(cur.Type, patch); err != nil {
		return nil, err
	}
	next := cur.Clone()
	next.Completed = true
	ts := at
	by := actor
	next.CompletedAt = &ts
	next.CompletedBy = &by
	if len(patch) > 0 {
		if next.Data == nil {
			next.Data = domain.ActionData{}
		}
		for k, v := range patch {
			next.Data[k] = v
		}
	}
	return replace(actions, i, next), nil
}

// Uncomplete clears the completion stamp of actionID. Data is kept.
func (l Ledger) Uncomplete(taskID string, actions []domain.Action, actionID string) ([]domain.Action, error) {
	i, err := indexOf(taskID, actions, actionID)
	if err != nil {
		return nil, err
	}
	next := actions[i].Clone()
	next.Completed = false
	next.CompletedAt = nil
	next.CompletedBy = nil
	return replace(actions, i, next), nil
}

// MissingRequired lists required actions that are not completed, in order.
func MissingRequired(actions []domain.Action) []string {
	return domain.Task{Actions: actions}.MissingRequired()
}

// ValidateType rejects action types absent from the catalog.
func (l Ledger) ValidateType(typ string) error {
	if len(l.Types) == 0 {
		return nil
	}
	if _, ok := l.Types[typ]; !ok {
		return domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown action type %q", typ)}
	}
	return nil
}

// ValidateData checks data keys and value kinds against the schema of typ.
func (l Ledger) ValidateData(typ string, data domain.ActionData) error {
	if len(l.Types) == 0 || len(data) == 0 {
		return nil
	}
	schema, ok := l.Types[typ]
	if !ok {
		return l.ValidateType(typ)
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kind, declared := schema.Fields[k]
		if !declared {
			if schema.Extensible {
				continue
			}
			return domain.ValidationError{Field: "data." + k, Reason: fmt.Sprintf("not a field of action type %s", typ)}
		}
		if !matches(kind, data[k]) {
			return domain.ValidationError{Field: "data." + k, Reason: fmt.Sprintf("expected %s", kind)}
		}
	}
	return nil
}

// Validate checks a freshly built action list: ids present and unique, types
// known, data conforming.
func (l Ledger) Validate(actions []domain.Action) error {
	seen := make(map[string]struct{}, len(actions))
	for i, a := range actions {
		if a.ID == "" {
			return domain.ValidationError{Field: fmt.Sprintf("actions[%d].id", i), Reason: "required"}
		}
		if _, dup := seen[a.ID]; dup {
			return domain.ValidationError{Field: fmt.Sprintf("actions[%d].id", i), Reason: fmt.Sprintf("duplicate action id %s", a.ID)}
		}
		seen[a.ID] = struct{}{}
		if err := l.ValidateType(a.Type); err != nil {
			return err
		}
		if err := l.ValidateData(a.Type, a.Data); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(taskID string, actions []domain.Action, actionID string) (int, error) {
	idx := make(map[string]int, len(actions))
	for i, a := range actions {
		idx[a.ID] = i
	}
	i, ok := idx[actionID]
	if !ok {
		return 0, domain.ActionNotFoundError{TaskID: taskID, ActionID: actionID}
	}
	return i, nil
}

func replace(actions []domain.Action, i int, next domain.Action) []domain.Action {
	out := make([]domain.Action, len(actions))
	copy(out, actions)
	out[i] = next
	return out
}

func matches(kind config.FieldKind, v any) bool {
	switch kind {
	case config.FieldAny:
		return true
	case config.FieldString:
		_, ok := v.(string)
		return ok
	case config.FieldBool:
		_, ok := v.(bool)
		return ok
	case config.FieldNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
			return true
		}
		return false
	}
	return false
}
