package activity

// ActivityPub and ActivityStreams vocabulary

const (
	Context         = "https://www.w3.org/ns/activitystreams"
	SecurityContext = "https://w3id.org/security/v1"
	ContentType     = "application/activity+json"
	ContentTypeLD   = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// PublicCollection is the special audience meaning "everyone".
	PublicCollection = "https://www.w3.org/ns/activitystreams#Public"
)

// ActivityPub object types
const (
	NoteType                  = "Note"
	ArticleType               = "Article"
	PageType                  = "Page"
	ImageType                 = "Image"
	AudioType                 = "Audio"
	VideoType                 = "Video"
	EventType                 = "Event"
	DocumentType              = "Document"
	LinkType                  = "Link"
	MentionType               = "Mention"
	HashtagType               = "Hashtag"
	TombstoneType             = "Tombstone"
	OrderedCollectionType     = "OrderedCollection"
	OrderedCollectionPageType = "OrderedCollectionPage"
)

// ActivityPub actor types
const (
	PersonType       = "Person"
	GroupType        = "Group"
	OrganizationType = "Organization"
	ServiceType      = "Service"
	ApplicationType  = "Application"
)

// ActivityPub activity types
const (
	CreateType   = "Create"
	UpdateType   = "Update"
	DeleteType   = "Delete"
	FollowType   = "Follow"
	AcceptType   = "Accept"
	RejectType   = "Reject"
	UndoType     = "Undo"
	LikeType     = "Like"
	AnnounceType = "Announce"
	MoveType     = "Move"
	AddType      = "Add"
	RemoveType   = "Remove"
	BlockType    = "Block"
	FlagType     = "Flag"
)

const (
	// ActivityPub time format string
	TimeFormat = "2006-01-02T15:04:05Z"
)

var activityTypes = map[string]bool{
	CreateType: true, UpdateType: true, DeleteType: true, FollowType: true,
	AcceptType: true, RejectType: true, UndoType: true, LikeType: true,
	AnnounceType: true, MoveType: true, AddType: true, RemoveType: true,
	BlockType: true, FlagType: true,
}

var actorTypes = map[string]bool{
	PersonType: true, GroupType: true, OrganizationType: true,
	ServiceType: true, ApplicationType: true,
}

var contentTypes = map[string]bool{
	NoteType: true, ArticleType: true, ImageType: true, AudioType: true,
	VideoType: true, EventType: true, DocumentType: true,
}

// IsActivityType reports whether t names an activity.
func IsActivityType(t string) bool { return activityTypes[t] }

// IsActorType reports whether t names an actor.
func IsActorType(t string) bool { return actorTypes[t] }

// IsContentType reports whether t names a content object that can become a local interaction.
func IsContentType(t string) bool { return contentTypes[t] }

// ContextFor returns the JSON-LD @context for a type.
func ContextFor(t string) any {
	switch {
	case IsActorType(t):
		return []any{
			Context,
			SecurityContext,
			map[string]any{
				"toot":                      "http://joinmastodon.org/ns#",
				"schema":                    "http://schema.org#",
				"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
				"discoverable":              "toot:discoverable",
				"featured":                  map[string]any{"@id": "toot:featured", "@type": "@id"},
				"alsoKnownAs":               map[string]any{"@id": "as:alsoKnownAs", "@type": "@id"},
				"movedTo":                   map[string]any{"@id": "as:movedTo", "@type": "@id"},
				"PropertyValue":             "schema:PropertyValue",
				"value":                     "schema:value",
			},
		}
	case IsActivityType(t), t == OrderedCollectionType, t == OrderedCollectionPageType:
		return Context
	}
	return []any{
		Context,
		map[string]any{
			"sensitive": "as:sensitive",
			"Hashtag":   "as:Hashtag",
		},
	}
}
