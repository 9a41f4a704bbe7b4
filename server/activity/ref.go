package activity

import (
	"bytes"
	"encoding/json"
)

// Ref is a property value that may be a bare IRI or an embedded object.
// JSON-LD lets peers send either, so we keep whichever we got and marshal it back the same way.
type Ref struct {
	IRI      string
	Object   *Object
	Activity *Activity
}

func IRI(s string) *Ref {
	return &Ref{IRI: s}
}

func Embed(o *Object) *Ref {
	return &Ref{Object: o}
}

func EmbedActivity(a *Activity) *Ref {
	return &Ref{Activity: a}
}

// ID returns the IRI or the embedded object's id.
func (r *Ref) ID() string {
	switch {
	case r == nil:
		return ""
	case r.Activity != nil:
		return r.Activity.ID
	case r.Object != nil:
		return r.Object.ID
	}
	return r.IRI
}

// GetType returns the embedded object's type, or "" for a bare IRI.
func (r *Ref) GetType() string {
	switch {
	case r == nil:
		return ""
	case r.Activity != nil:
		return r.Activity.Type
	case r.Object != nil:
		return r.Object.Type
	}
	return ""
}

func (r *Ref) IsZero() bool {
	return r == nil || (r.IRI == "" && r.Object == nil && r.Activity == nil)
}

func (r Ref) MarshalJSON() ([]byte, error) {
	switch {
	case r.Activity != nil:
		return json.Marshal(r.Activity)
	case r.Object != nil:
		return json.Marshal(r.Object)
	}
	return json.Marshal(r.IRI)
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = Ref{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		return json.Unmarshal(b, &r.IRI)
	case '[':
		// a list where one value was expected: keep the first one
		var list []json.RawMessage
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		for _, item := range list {
			var first Ref
			if err := first.UnmarshalJSON(item); err != nil {
				return err
			}
			if !first.IsZero() {
				*r = first
				return nil
			}
		}
		return nil
	}
	var peek struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(b, &peek); err != nil {
		return err
	}
	var typ string
	_ = json.Unmarshal(peek.Type, &typ)
	if IsActivityType(typ) {
		r.Activity = &Activity{}
		return json.Unmarshal(b, r.Activity)
	}
	r.Object = &Object{}
	return json.Unmarshal(b, r.Object)
}

// Refs is a multi-valued property. A single value is accepted on input.
type Refs []Ref

func (rs *Refs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*rs = nil
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '[' {
		var r Ref
		if err := r.UnmarshalJSON(b); err != nil {
			return err
		}
		*rs = Refs{r}
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	out := make(Refs, 0, len(list))
	for _, item := range list {
		var r Ref
		if err := r.UnmarshalJSON(item); err != nil {
			return err
		}
		if !r.IsZero() {
			out = append(out, r)
		}
	}
	*rs = out
	return nil
}

// Append adds refs not already present, compared by id.
func (rs Refs) Append(more ...Ref) Refs {
	seen := make(map[string]bool, len(rs))
	for i := range rs {
		seen[rs[i].ID()] = true
	}
	for i := range more {
		id := more[i].ID()
		if id != "" && seen[id] {
			continue
		}
		seen[id] = true
		rs = append(rs, more[i])
	}
	return rs
}

// IRIs is an addressing property (to, cc...). Peers send a string, a list of
// strings, or embedded objects; all are reduced to their ids.
type IRIs []string

func (s *IRIs) UnmarshalJSON(b []byte) error {
	var refs Refs
	if err := refs.UnmarshalJSON(b); err != nil {
		return err
	}
	out := make(IRIs, 0, len(refs))
	for i := range refs {
		if id := refs[i].ID(); id != "" {
			out = append(out, id)
		}
	}
	*s = out.Append()
	return nil
}

// Append adds values not already present.
func (s IRIs) Append(more ...string) IRIs {
	seen := make(map[string]bool, len(s)+len(more))
	out := make(IRIs, 0, len(s)+len(more))
	for _, v := range append(append([]string{}, s...), more...) {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (s IRIs) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
