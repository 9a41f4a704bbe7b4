// Package visibility derives who an activity is meant for from its addressing.
package visibility

import (
	"github.com/tkrehbiel/blogfed/server/activity"
)

type Visibility int

const (
	Public Visibility = iota
	QuietPublic
	Private
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case QuietPublic:
		return "quiet_public"
	}
	return "private"
}

// Parse is the inverse of String. Anything unrecognized is Private.
func Parse(s string) Visibility {
	switch s {
	case "public":
		return Public
	case "quiet_public", "unlisted":
		return QuietPublic
	}
	return Private
}

// Public audience sentinels. Peers use the full IRI or one of the compacted forms.
var publicAudience = map[string]bool{
	activity.PublicCollection: true,
	"as:Public":               true,
	"Public":                  true,
}

// IsPublic reports whether uri is the public audience.
func IsPublic(uri string) bool {
	return publicAudience[uri]
}

// control activities are never broadcast
var controlTypes = map[string]bool{
	activity.AcceptType: true,
	activity.DeleteType: true,
	activity.FollowType: true,
	activity.RejectType: true,
	activity.UndoType:   true,
}

type addressing struct {
	to, bto, cc, bcc, audience activity.IRIs
}

func (a addressing) all() activity.IRIs {
	return activity.IRIs{}.Append(a.to...).
		Append(a.bto...).
		Append(a.cc...).
		Append(a.bcc...).
		Append(a.audience...)
}

func fromRef(r *activity.Ref) addressing {
	switch {
	case r == nil:
		return addressing{}
	case r.Object != nil:
		o := r.Object
		return addressing{o.To, o.Bto, o.CC, o.BCC, o.Audience}
	case r.Activity != nil:
		a := r.Activity
		return addressing{a.To, a.Bto, a.CC, a.BCC, a.Audience}
	}
	return addressing{}
}

// levels returns the addressing of the activity, then its object, then its instrument.
func levels(a *activity.Activity) []addressing {
	return []addressing{
		{a.To, a.Bto, a.CC, a.BCC, a.Audience},
		fromRef(a.Object),
		fromRef(a.Instrument),
	}
}

func first(a *activity.Activity, pick func(addressing) activity.IRIs) activity.IRIs {
	for _, l := range levels(a) {
		if v := pick(l); len(v) > 0 {
			return v
		}
	}
	return nil
}

func anyPublic(list activity.IRIs) bool {
	for _, uri := range list {
		if IsPublic(uri) {
			return true
		}
	}
	return false
}

// Recipients is the de-duplicated union of to, bto, cc, bcc and audience.
// It comes from the activity, or from its object or instrument when the activity has none.
func Recipients(a *activity.Activity) []string {
	if a == nil {
		return nil
	}
	for _, l := range levels(a) {
		if all := l.all(); len(all) > 0 {
			return all
		}
	}
	return nil
}

// Of derives the visibility of an activity.
func Of(a *activity.Activity) Visibility {
	if a == nil || controlTypes[a.Type] {
		return Private
	}
	if anyPublic(first(a, func(l addressing) activity.IRIs { return l.to })) {
		return Public
	}
	if anyPublic(first(a, func(l addressing) activity.IRIs { return l.cc })) {
		return QuietPublic
	}
	if len(Recipients(a)) == 0 {
		return Public
	}
	return Private
}
