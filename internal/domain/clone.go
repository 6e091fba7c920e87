package domain

// Clone returns a copy of t that shares no slices or maps with it, so a
// mutation of the copy never leaks into the value it was read from.
func (t Task) Clone() Task {
	out := t
	out.DueDate = cloneInt64(t.DueDate)
	if t.Actions != nil {
		out.Actions = make([]Action, len(t.Actions))
		for i, a := range t.Actions {
			out.Actions[i] = a.Clone()
		}
	}
	if t.Comments != nil {
		out.Comments = append([]Comment(nil), t.Comments...)
	}
	if t.Attachments != nil {
		out.Attachments = append([]string(nil), t.Attachments...)
	}
	return out
}

func (a Action) Clone() Action {
	out := a
	out.CompletedAt = cloneInt64(a.CompletedAt)
	if a.CompletedBy != nil {
		by := *a.CompletedBy
		out.CompletedBy = &by
	}
	out.Data = a.Data.Clone()
	return out
}

func (d ActionData) Clone() ActionData {
	if d == nil {
		return nil
	}
	out := make(ActionData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// MissingRequired returns the ids of required actions that are not completed,
// in action order.
func (t Task) MissingRequired() []string {
	var missing []string
	for _, a := range t.Actions {
		if a.Required && !a.Completed {
			missing = append(missing, a.ID)
		}
	}
	return missing
}
