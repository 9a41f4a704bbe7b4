package activity

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tkrehbiel/blogfed/server/errs"
)

// marshal encodes v. encoding/json escapes <, > and & so the output is safe to embed in HTML.
func marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "encoding json")
	}
	return b, nil
}

// toMap converts a document to a generic map, with or without its @context.
func toMap(v any, typ string, context any, includeContext bool) (map[string]any, error) {
	b, err := marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "decoding json")
	}
	delete(m, "@context")
	if includeContext {
		if context == nil {
			context = ContextFor(typ)
		}
		m["@context"] = context
	}
	return m, nil
}

func decode(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errs.Coded(errs.ErrInvalidJSON, err, "decoding %T", v)
	}
	return nil
}

// ParseActivity decodes an activity. Properties outside the fixed schema are dropped.
func ParseActivity(b []byte) (*Activity, error) {
	var a Activity
	if err := decode(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ParseObject decodes an object. Properties outside the fixed schema are dropped.
func ParseObject(b []byte) (*Object, error) {
	var o Object
	if err := decode(b, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ParseActor decodes an actor document.
func ParseActor(b []byte) (*Actor, error) {
	var a Actor
	if err := decode(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ParseStrict decodes b into v and fails with InvalidKey when the top-level
// document carries a property outside v's schema.
func ParseStrict(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			return errs.Wrap(errs.InvalidKey, err, "decoding %T", v)
		}
		return errs.Coded(errs.ErrInvalidJSON, err, "decoding %T", v)
	}
	return nil
}
