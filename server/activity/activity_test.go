package activity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrehbiel/blogfed/server/errs"
)

func TestActivity_Strings(t *testing.T) {
	const exampleFollow = `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"summary": "Sally followed John",
		"type": "Follow",
		"actor": "Sally",
		"object": "John"
	  }`
	act, err := ParseActivity([]byte(exampleFollow))
	require.NoError(t, err)
	assert.Equal(t, "Sally", act.Actor.IRI)
	assert.Equal(t, "John", act.Object.IRI)
	assert.Nil(t, act.EmbeddedObject())
}

func TestActivity_Maps(t *testing.T) {
	const exampleFollow = `{
		"@context": "https://www.w3.org/ns/activitystreams",
		"summary": "Sally followed John",
		"type": "Follow",
		"actor": {
		  "type": "Person",
		  "id": "https://sally.example/",
		  "name": "Sally"
		},
		"object": {
		  "type": "Person",
		  "id": "https://john.example/",
		  "name": "John"
		}
	  }`
	act, err := ParseActivity([]byte(exampleFollow))
	require.NoError(t, err)
	require.NotNil(t, act.Actor.Object)
	assert.Equal(t, "https://sally.example/", act.ActorID())
	assert.Equal(t, "https://john.example/", act.ObjectID())
	assert.Equal(t, PersonType, act.ObjectType())
}

func TestActivity_NestedActivity(t *testing.T) {
	const undo = `{
		"type": "Undo",
		"id": "https://remote.example/undo/1",
		"actor": "https://remote.example/users/a",
		"object": {
			"type": "Follow",
			"id": "https://remote.example/follow/1",
			"actor": "https://remote.example/users/a",
			"object": "https://blog.example/a/blog"
		}
	}`
	act, err := ParseActivity([]byte(undo))
	require.NoError(t, err)
	inner := act.EmbeddedActivity()
	require.NotNil(t, inner)
	assert.Equal(t, FollowType, inner.Type)
	assert.Equal(t, "https://blog.example/a/blog", inner.ObjectID())

	// marshals back with the same nesting
	b, err := json.Marshal(act)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"object":{"id":"https://remote.example/follow/1","type":"Follow"`)
}

func TestIRIs_Lenient(t *testing.T) {
	var o Object
	require.NoError(t, json.Unmarshal([]byte(`{"to":"https://a.example/","cc":[{"id":"https://b.example/"},"https://b.example/","https://c.example/"]}`), &o))
	assert.Equal(t, IRIs{"https://a.example/"}, o.To)
	assert.Equal(t, IRIs{"https://b.example/", "https://c.example/"}, o.CC)
}

func TestSetObject_CopiesAddressing(t *testing.T) {
	note := &Object{
		ID:           "https://blog.example/2024/01/hello",
		Type:         NoteType,
		Content:      "hello",
		AttributedTo: IRI("https://blog.example/a/alice"),
		InReplyTo:    IRI("https://remote.example/notes/1"),
		To:           IRIs{PublicCollection},
		CC:           IRIs{"https://blog.example/a/alice/followers"},
		Published:    "2024-01-02T03:04:05Z",
	}
	act := NewActivity(CreateType, "", Embed(note))
	assert.Equal(t, IRIs{PublicCollection}, act.To)
	assert.Equal(t, IRIs{"https://blog.example/a/alice/followers"}, act.CC)
	assert.Equal(t, "2024-01-02T03:04:05Z", act.Published)
	assert.Equal(t, "https://blog.example/a/alice", act.ActorID())
	assert.Equal(t, "https://remote.example/notes/1", act.InReplyTo.ID())
	assert.True(t, strings.HasPrefix(act.ID, "https://blog.example/2024/01/hello#activity-create-"), act.ID)
}

func TestSetObject_KeepsExisting(t *testing.T) {
	act := &Activity{Type: UpdateType, ID: "https://blog.example/u/1", To: IRIs{"https://x.example/"}}
	act.SetObject(Embed(&Object{ID: "https://blog.example/p/1", To: IRIs{PublicCollection}}))
	assert.Equal(t, "https://blog.example/u/1", act.ID)
	assert.Equal(t, IRIs{"https://x.example/"}, act.To)
}

func TestSetObject_IDFromURL(t *testing.T) {
	act := &Activity{Type: CreateType}
	act.SetObject(Embed(&Object{URL: IRI("https://blog.example/p/2")}))
	assert.True(t, strings.HasPrefix(act.ID, "https://blog.example/p/2#activity-create-"))
}

func TestProperties_UnknownKey(t *testing.T) {
	o := &Object{}
	_, err := o.Get("nonsense")
	assert.True(t, errors.Is(err, errs.ErrInvalidKey))
	assert.True(t, errors.Is(o.Set("nonsense", "x"), errs.ErrInvalidKey))
	assert.True(t, errors.Is(o.Add("nonsense", "x"), errs.ErrInvalidKey))

	a := &Activity{}
	_, err = a.Get("content_warning")
	assert.True(t, errors.Is(err, errs.ErrInvalidKey))
}

func TestProperties_EveryKeyResolves(t *testing.T) {
	for _, k := range (&Object{}).Keys() {
		_, err := (&Object{}).Get(k)
		assert.NoError(t, err, k)
	}
	for _, k := range (&Activity{}).Keys() {
		_, err := (&Activity{}).Get(k)
		assert.NoError(t, err, k)
	}
	for _, k := range (&Actor{}).Keys() {
		_, err := (&Actor{}).Get(k)
		assert.NoError(t, err, k)
	}
}

func TestProperties_SetAndGet(t *testing.T) {
	o := &Object{}
	require.NoError(t, o.Set("content", "<p>hi</p>"))
	require.NoError(t, o.Set("inReplyTo", "https://blog.example/p/1"))
	require.NoError(t, o.Set("to", PublicCollection))
	v, err := o.Get("content")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", v)
	assert.Equal(t, "https://blog.example/p/1", o.InReplyTo.ID())
	assert.Equal(t, IRIs{PublicCollection}, o.To)

	assert.True(t, errors.Is(o.Set("content", 5), errs.ErrInvalidInput))
}

func TestProperties_AddDeduplicates(t *testing.T) {
	o := &Object{}
	require.NoError(t, o.Add("to", "https://a.example/"))
	require.NoError(t, o.Add("to", []string{"https://a.example/", "https://b.example/"}))
	assert.Equal(t, IRIs{"https://a.example/", "https://b.example/"}, o.To)

	require.NoError(t, o.Add("tag", &Object{Type: HashtagType, ID: "https://blog.example/tags/go"}))
	require.NoError(t, o.Add("tag", &Object{Type: HashtagType, ID: "https://blog.example/tags/go"}))
	assert.Len(t, o.Tag, 1)

	assert.True(t, errors.Is(o.Add("content", "x"), errs.ErrInvalidInput))
}

func TestToMap(t *testing.T) {
	o := &Object{ID: "https://blog.example/p/1", Type: NoteType, Content: "hi"}
	m, err := o.ToMap(false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "https://blog.example/p/1", "type": "Note", "content": "hi"}, m)

	m, err = o.ToMap(true)
	require.NoError(t, err)
	assert.NotNil(t, m["@context"])
	_, hasSummary := m["summary"]
	assert.False(t, hasSummary, "unset keys must be absent")
}

func TestToMap_UnsetType(t *testing.T) {
	a := &Activity{ID: "https://blog.example/a/1"}
	m, err := a.ToMap(false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "https://blog.example/a/1"}, m)

	actor := &Actor{ID: "https://blog.example/a/blog"}
	m, err = actor.ToMap(false)
	require.NoError(t, err)
	assert.NotContains(t, m, "type")

	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"type"`)
}

func TestJSON_HTMLSafe(t *testing.T) {
	o := &Object{ID: "https://blog.example/p/1", Type: NoteType, Content: "<script>&"}
	b, err := o.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `\u003cscript\u003e\u0026`)
	assert.NotContains(t, string(b), "<script>")
	assert.NotContains(t, string(b), "null")
}

func TestActivityContext_FromObject(t *testing.T) {
	act := NewActivity(UpdateType, "https://blog.example/a/alice", Embed(&Object{ID: "https://blog.example/a/alice", Type: PersonType}))
	m, err := act.ToMap(true)
	require.NoError(t, err)
	ctx, ok := m["@context"].([]any)
	require.True(t, ok)
	assert.Contains(t, ctx, SecurityContext)
}

func TestParseStrict(t *testing.T) {
	var o Object
	err := ParseStrict([]byte(`{"id":"x","type":"Note","favourites":3}`), &o)
	assert.True(t, errors.Is(err, errs.ErrInvalidKey))

	err = ParseStrict([]byte(`{"id":`), &o)
	assert.True(t, errors.Is(err, errs.ErrInvalidJSON))

	require.NoError(t, ParseStrict([]byte(`{"id":"x","type":"Note"}`), &o))
	assert.Equal(t, "x", o.ID)
}

func TestParse_DropsUnknown(t *testing.T) {
	o, err := ParseObject([]byte(`{"id":"x","type":"Note","atomUri":"y","content":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, "c", o.Content)
}

func TestCollectionPaging(t *testing.T) {
	c := NewCollection("https://blog.example/a/alice/outbox", 25, 10)
	assert.Equal(t, "https://blog.example/a/alice/outbox?page=1", c.First)
	assert.Equal(t, "https://blog.example/a/alice/outbox?page=3", c.Last)

	p := NewCollectionPage("https://blog.example/a/alice/outbox", 2, 25, 10, nil)
	assert.Equal(t, "https://blog.example/a/alice/outbox?page=3", p.Next)
	assert.Equal(t, "https://blog.example/a/alice/outbox?page=1", p.Prev)

	last := NewCollectionPage("https://blog.example/a/alice/outbox", 3, 25, 10, nil)
	assert.Empty(t, last.Next)
	assert.Equal(t, 1, LastPage(0, 10))
}
