package visibility

import (
	"github.com/tkrehbiel/blogfed/server/activity"
)

// ObjectToURI reduces a property value to a single uri. Lists yield their
// first element. Media objects yield their url, links and mentions their href,
// everything else its id.
func ObjectToURI(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		if len(t) == 0 {
			return ""
		}
		return t[0]
	case activity.IRIs:
		return ObjectToURI([]string(t))
	case []any:
		if len(t) == 0 {
			return ""
		}
		return ObjectToURI(t[0])
	case activity.Refs:
		if len(t) == 0 {
			return ""
		}
		return ObjectToURI(&t[0])
	case activity.Ref:
		return ObjectToURI(&t)
	case *activity.Ref:
		switch {
		case t == nil:
			return ""
		case t.Activity != nil:
			return t.Activity.ID
		case t.Object != nil:
			return ObjectToURI(t.Object)
		}
		return t.IRI
	case *activity.Object:
		if t == nil {
			return ""
		}
		switch t.Type {
		case activity.ImageType, activity.AudioType, activity.VideoType, activity.DocumentType:
			return ObjectToURI(t.URL)
		case activity.LinkType, activity.MentionType:
			return t.Href
		}
		return t.ID
	case *activity.Activity:
		if t == nil {
			return ""
		}
		return t.ID
	case *activity.Actor:
		if t == nil {
			return ""
		}
		return t.ID
	case map[string]any:
		switch t["type"] {
		case activity.ImageType, activity.AudioType, activity.VideoType, activity.DocumentType:
			return ObjectToURI(t["url"])
		case activity.LinkType, activity.MentionType:
			return ObjectToURI(t["href"])
		}
		return ObjectToURI(t["id"])
	}
	return ""
}
