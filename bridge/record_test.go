package bridge

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestMatchesKnownKind(t *testing.T) {
	for _, kind := range KnownKinds {
		assert.Equal(t, true, MatchesKnownKind(string(kind)+":abc"))
	}

	assert.Equal(t, false, MatchesKnownKind("widget:abc"))
	assert.Equal(t, false, MatchesKnownKind("shape"))
	assert.Equal(t, false, MatchesKnownKind(":abc"))
	assert.Equal(t, false, MatchesKnownKind(""))
	// the kind segment must match exactly up to the colon
	assert.Equal(t, false, MatchesKnownKind("shapes:abc"))
	assert.Equal(t, false, MatchesKnownKind("instance_presence_extra:abc"))
	// "instance" must not claim longer kind names
	assert.Equal(t, true, MatchesKnownKind("instance_page_state:abc"))
	assert.Equal(t, true, MatchesKnownKind("instance:abc"))
}

func TestSplitRecordId(t *testing.T) {
	kind, suffix := SplitRecordId("shape:abc")
	assert.Equal(t, KindShape, kind)
	assert.Equal(t, "abc", suffix)

	kind, suffix = SplitRecordId("shape:a:b")
	assert.Equal(t, KindShape, kind)
	assert.Equal(t, "a:b", suffix)

	kind, suffix = SplitRecordId("nocolon")
	assert.Equal(t, RecordKind(""), kind)
	assert.Equal(t, "nocolon", suffix)
}

func TestNewRecordId(t *testing.T) {
	id := NewRecordId(KindShape)
	assert.Equal(t, true, strings.HasPrefix(id, "shape:"))
	assert.Equal(t, true, MatchesKnownKind(id))
	// ids are unique
	assert.NotEqual(t, id, NewRecordId(KindShape))
}

func TestPresenceId(t *testing.T) {
	id := PresenceId("clientA")
	assert.Equal(t, "instance_presence:clientA", id)
	assert.Equal(t, true, MatchesKnownKind(id))
}

func TestRecordAccessors(t *testing.T) {
	record := Record{"id": "shape:abc", "x": 1}
	assert.Equal(t, "shape:abc", record.Id())
	assert.Equal(t, KindShape, record.Kind())
	assert.Equal(t, ScopeDocument, record.Scope())

	assert.Equal(t, ScopeSession, Record{"id": "camera:c"}.Scope())
	assert.Equal(t, ScopePresence, Record{"id": "instance_presence:p"}.Scope())

	// a record without an id has no kind
	assert.Equal(t, "", Record{"x": 1}.Id())
}
