package bridge

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Records are schemaless documents keyed by a kind-prefixed id,
// `"<kind>:<suffix>"`. The bridge treats record attributes as opaque,
// structurally comparable values. The id doubles as the storage key
// and the kind discriminant.

type RecordId = string

type RecordKind string

const (
	KindAsset             RecordKind = "asset"
	KindCamera            RecordKind = "camera"
	KindDocument          RecordKind = "document"
	KindInstance          RecordKind = "instance"
	KindPage              RecordKind = "page"
	KindInstancePageState RecordKind = "instance_page_state"
	KindPointer           RecordKind = "pointer"
	KindInstancePresence  RecordKind = "instance_presence"
	KindShape             RecordKind = "shape"
)

// the fixed, ordered set of record kinds the bridge manages.
// keys of any other kind pass through the system untouched so that
// newer remote data does not break older clients.
var KnownKinds = []RecordKind{
	KindAsset,
	KindCamera,
	KindDocument,
	KindInstance,
	KindPage,
	KindInstancePageState,
	KindPointer,
	KindInstancePresence,
	KindShape,
}

// RecordScope partitions kinds by sync behavior.
// Document records replicate to all sessions. Session records are
// per-session UI state and never leave the local store. Presence
// records are ephemeral peer state fed by the presence stream.
type RecordScope string

const (
	ScopeDocument RecordScope = "document"
	ScopeSession  RecordScope = "session"
	ScopePresence RecordScope = "presence"
)

var kindScopes = map[RecordKind]RecordScope{
	KindAsset:             ScopeDocument,
	KindDocument:          ScopeDocument,
	KindPage:              ScopeDocument,
	KindShape:             ScopeDocument,
	KindCamera:            ScopeSession,
	KindInstance:          ScopeSession,
	KindInstancePageState: ScopeSession,
	KindPointer:           ScopeSession,
	KindInstancePresence:  ScopePresence,
}

// Record must carry a string "id" attribute. Everything else is opaque.
type Record map[string]any

func (self Record) Id() RecordId {
	if id, ok := self["id"].(string); ok {
		return id
	}
	return ""
}

func (self Record) Kind() RecordKind {
	kind, _ := SplitRecordId(self.Id())
	return kind
}

func (self Record) Scope() RecordScope {
	return kindScopes[self.Kind()]
}

// NewRecordId mints a kind-prefixed id with a ulid suffix
func NewRecordId(kind RecordKind) RecordId {
	return fmt.Sprintf("%s:%s", kind, strings.ToLower(ulid.Make().String()))
}

// PresenceId is the instance_presence record id for a session
func PresenceId(clientId string) RecordId {
	return fmt.Sprintf("%s:%s", KindInstancePresence, clientId)
}

// SplitRecordId splits `"<kind>:<suffix>"` on the first colon.
// The kind segment must match exactly: "instance" must not claim
// "instance_page_state:x".
func SplitRecordId(id RecordId) (RecordKind, string) {
	i := strings.IndexByte(id, ':')
	if i < 0 {
		return "", id
	}
	return RecordKind(id[:i]), id[i+1:]
}

// MatchesKnownKind reports whether a raw key denotes a record kind the
// bridge manages. Applied identically at initial load and at every
// incremental diff.
func MatchesKnownKind(key string) bool {
	kind, _ := SplitRecordId(key)
	if kind == "" {
		return false
	}
	for _, knownKind := range KnownKinds {
		if kind == knownKind {
			return true
		}
	}
	return false
}
