package bridge

// presence is this session's ephemeral state (identity, viewport,
// cursor, selection) as observed by peers. it is derived from local
// user preferences plus session records in the store, pushed to the
// remote on change, and never stored in this session's own local
// store.

const (
	DefaultUserColor = "#02B1CC"
	DefaultUserName  = "New User"
)

// UserPreferences is this session's identity for presence purposes.
type UserPreferences struct {
	Id    string
	Color string
	Name  string
}

// WithDefaults substitutes the default color and name when unset
func (self UserPreferences) WithDefaults() UserPreferences {
	out := self
	if out.Color == "" {
		out.Color = DefaultUserColor
	}
	if out.Name == "" {
		out.Name = DefaultUserName
	}
	return out
}

// DerivePresence computes the own presence record for one session from
// the user preferences and the session-scoped records in the store.
// Returns nil while the session records are not initialized yet; a nil
// snapshot is never pushed.
func DerivePresence(store *LocalStore, preferences UserPreferences, presenceId RecordId) Record {
	instances := store.RecordsOfKind(KindInstance)
	if len(instances) == 0 {
		return nil
	}
	instance := instances[0]

	presence := Record{
		"id":       presenceId,
		"userId":   preferences.Id,
		"userName": preferences.Name,
		"color":    preferences.Color,
	}

	if currentPageId, ok := instance["currentPageId"]; ok {
		presence["currentPageId"] = currentPageId
	}

	if cameras := store.RecordsOfKind(KindCamera); 0 < len(cameras) {
		camera := cameras[0]
		presence["camera"] = map[string]any{
			"x": camera["x"],
			"y": camera["y"],
			"z": camera["z"],
		}
	}

	if pointers := store.RecordsOfKind(KindPointer); 0 < len(pointers) {
		pointer := pointers[0]
		presence["cursor"] = map[string]any{
			"x": pointer["x"],
			"y": pointer["y"],
		}
	}

	if pageStates := store.RecordsOfKind(KindInstancePageState); 0 < len(pageStates) {
		if selectedShapeIds, ok := pageStates[0]["selectedShapeIds"]; ok {
			presence["selectedShapeIds"] = selectedShapeIds
		}
	}

	return presence
}
