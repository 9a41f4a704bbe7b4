package activity

// Actor is an actor document, local or fetched from a remote server.
type Actor struct {
	Context                   any        `json:"@context,omitempty"`
	ID                        string     `json:"id"`
	Type                      string     `json:"type,omitempty"`
	Name                      string     `json:"name,omitempty"`
	PreferredUsername         string     `json:"preferredUsername,omitempty"`
	Summary                   string     `json:"summary,omitempty"`
	URL                       *Ref       `json:"url,omitempty"`
	Inbox                     string     `json:"inbox,omitempty"`
	Outbox                    string     `json:"outbox,omitempty"`
	Followers                 string     `json:"followers,omitempty"`
	Following                 string     `json:"following,omitempty"`
	Featured                  string     `json:"featured,omitempty"`
	Endpoints                 *Endpoints `json:"endpoints,omitempty"`
	PublicKey                 *PublicKey `json:"publicKey,omitempty"`
	Icon                      *Ref       `json:"icon,omitempty"`
	Image                     *Ref       `json:"image,omitempty"`
	ManuallyApprovesFollowers bool       `json:"manuallyApprovesFollowers"`
	Discoverable              bool       `json:"discoverable,omitempty"`
	AlsoKnownAs               IRIs       `json:"alsoKnownAs,omitempty"`
	MovedTo                   string     `json:"movedTo,omitempty"`
	Published                 string     `json:"published,omitempty"`
	Attachment                Refs       `json:"attachment,omitempty"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

var actorKeys = []string{
	"@context", "id", "type", "name", "preferredUsername", "summary", "url", "inbox",
	"outbox", "followers", "following", "featured", "endpoints", "publicKey", "icon",
	"image", "manuallyApprovesFollowers", "discoverable", "alsoKnownAs", "movedTo",
	"published", "attachment",
}

func (a *Actor) field(key string) any {
	switch key {
	case "@context":
		return &a.Context
	case "id":
		return &a.ID
	case "type":
		return &a.Type
	case "name":
		return &a.Name
	case "preferredUsername":
		return &a.PreferredUsername
	case "summary":
		return &a.Summary
	case "url":
		return &a.URL
	case "inbox":
		return &a.Inbox
	case "outbox":
		return &a.Outbox
	case "followers":
		return &a.Followers
	case "following":
		return &a.Following
	case "featured":
		return &a.Featured
	case "endpoints":
		return &a.Endpoints
	case "publicKey":
		return &a.PublicKey
	case "icon":
		return &a.Icon
	case "image":
		return &a.Image
	case "manuallyApprovesFollowers":
		return &a.ManuallyApprovesFollowers
	case "discoverable":
		return &a.Discoverable
	case "alsoKnownAs":
		return &a.AlsoKnownAs
	case "movedTo":
		return &a.MovedTo
	case "published":
		return &a.Published
	case "attachment":
		return &a.Attachment
	}
	return nil
}

func (a *Actor) Keys() []string { return append([]string(nil), actorKeys...) }

func (a *Actor) Get(key string) (any, error) { return getProperty(a, key) }

func (a *Actor) Set(key string, value any) error { return setProperty(a, key, value) }

func (a *Actor) Add(key string, value any) error { return addProperty(a, key, value) }

func (a *Actor) ToMap(includeContext bool) (map[string]any, error) {
	return toMap(a, a.Type, a.Context, includeContext)
}

// JSON encodes the actor with its @context.
func (a *Actor) JSON() ([]byte, error) {
	c := *a
	if c.Context == nil {
		c.Context = ContextFor(c.Type)
	}
	return marshal(&c)
}

// SharedInbox returns the server-wide inbox if the actor advertises one.
func (a *Actor) SharedInbox() string {
	if a.Endpoints == nil {
		return ""
	}
	return a.Endpoints.SharedInbox
}

// Handle returns user@host when the document carries a preferredUsername.
func (a *Actor) Handle(host string) string {
	if a.PreferredUsername == "" || host == "" {
		return ""
	}
	return a.PreferredUsername + "@" + host
}
