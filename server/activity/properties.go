package activity

import (
	"fmt"

	"github.com/tkrehbiel/blogfed/server/errs"
)

// fielder is implemented by the typed documents. field returns a pointer to
// the struct field backing a JSON property name, or nil for an unknown key.
type fielder interface {
	field(key string) any
}

func unknownKey(key string) error {
	return errs.New(errs.InvalidKey, "unknown property %q", key)
}

func badValue(key string, value any) error {
	return errs.New(errs.InvalidInput, "property %q cannot hold %T", key, value)
}

func getProperty(f fielder, key string) (any, error) {
	switch p := f.field(key).(type) {
	case nil:
		return nil, unknownKey(key)
	case *string:
		return *p, nil
	case *bool:
		return *p, nil
	case *int:
		return *p, nil
	case *IRIs:
		return *p, nil
	case *Refs:
		return *p, nil
	case **Ref:
		return *p, nil
	case *map[string]string:
		return *p, nil
	case **Endpoints:
		return *p, nil
	case **PublicKey:
		return *p, nil
	case *any:
		return *p, nil
	}
	return nil, unknownKey(key)
}

func setProperty(f fielder, key string, value any) error {
	switch p := f.field(key).(type) {
	case nil:
		return unknownKey(key)
	case *string:
		s, ok := value.(string)
		if !ok {
			return badValue(key, value)
		}
		*p = s
	case *bool:
		b, ok := value.(bool)
		if !ok {
			return badValue(key, value)
		}
		*p = b
	case *int:
		n, ok := value.(int)
		if !ok {
			return badValue(key, value)
		}
		*p = n
	case *IRIs:
		v, err := toIRIs(key, value)
		if err != nil {
			return err
		}
		*p = IRIs{}.Append(v...)
	case *Refs:
		v, err := toRefs(key, value)
		if err != nil {
			return err
		}
		*p = Refs{}.Append(v...)
	case **Ref:
		r, err := toRef(key, value)
		if err != nil {
			return err
		}
		*p = r
	case *map[string]string:
		m, ok := value.(map[string]string)
		if !ok {
			return badValue(key, value)
		}
		*p = m
	case **Endpoints:
		e, ok := value.(*Endpoints)
		if !ok {
			return badValue(key, value)
		}
		*p = e
	case **PublicKey:
		k, ok := value.(*PublicKey)
		if !ok {
			return badValue(key, value)
		}
		*p = k
	case *any:
		*p = value
	default:
		return unknownKey(key)
	}
	return nil
}

// addProperty appends to a multi-valued property and drops duplicates.
func addProperty(f fielder, key string, value any) error {
	switch p := f.field(key).(type) {
	case nil:
		return unknownKey(key)
	case *IRIs:
		v, err := toIRIs(key, value)
		if err != nil {
			return err
		}
		*p = p.Append(v...)
	case *Refs:
		v, err := toRefs(key, value)
		if err != nil {
			return err
		}
		*p = p.Append(v...)
	default:
		return errs.New(errs.InvalidInput, "property %q is single-valued", key)
	}
	return nil
}

func toIRIs(key string, value any) (IRIs, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return IRIs{v}, nil
	case []string:
		return IRIs(v), nil
	case IRIs:
		return v, nil
	case *Ref:
		return IRIs{v.ID()}, nil
	}
	return nil, badValue(key, value)
}

func toRefs(key string, value any) (Refs, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case Refs:
		return v, nil
	case []Ref:
		return Refs(v), nil
	case []string:
		out := make(Refs, 0, len(v))
		for _, s := range v {
			out = append(out, Ref{IRI: s})
		}
		return out, nil
	}
	r, err := toRef(key, value)
	if err != nil || r == nil {
		return nil, err
	}
	return Refs{*r}, nil
}

func toRef(key string, value any) (*Ref, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return IRI(v), nil
	case Ref:
		return &v, nil
	case *Ref:
		return v, nil
	case *Object:
		return Embed(v), nil
	case *Activity:
		return EmbedActivity(v), nil
	case fmt.Stringer:
		return IRI(v.String()), nil
	}
	return nil, badValue(key, value)
}
