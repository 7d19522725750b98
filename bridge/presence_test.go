package bridge

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestUserPreferencesDefaults(t *testing.T) {
	preferences := UserPreferences{Id: "clientA"}.WithDefaults()
	assert.Equal(t, "clientA", preferences.Id)
	assert.Equal(t, DefaultUserColor, preferences.Color)
	assert.Equal(t, DefaultUserName, preferences.Name)

	// explicit values are kept
	preferences = UserPreferences{
		Id:    "clientA",
		Color: "#123456",
		Name:  "Ada",
	}.WithDefaults()
	assert.Equal(t, "#123456", preferences.Color)
	assert.Equal(t, "Ada", preferences.Name)
}

func TestDerivePresenceRequiresInstance(t *testing.T) {
	store := NewLocalStore("test")
	preferences := UserPreferences{Id: "clientA"}.WithDefaults()

	// no session records yet, no snapshot
	presence := DerivePresence(store, preferences, PresenceId("clientA"))
	assert.Equal(t, true, presence == nil)
}

func TestDerivePresence(t *testing.T) {
	store := NewLocalStore("test")
	store.Put([]Record{
		{"id": "instance:inst", "currentPageId": "page:p1"},
		{"id": "camera:cam", "x": 10, "y": 20, "z": 2},
		{"id": "pointer:ptr", "x": 3, "y": 4},
		{"id": "instance_page_state:ps", "selectedShapeIds": []any{"shape:a"}},
	})

	preferences := UserPreferences{
		Id:    "clientA",
		Color: "#123456",
		Name:  "Ada",
	}
	presence := DerivePresence(store, preferences, PresenceId("clientA"))

	assert.Equal(t, PresenceId("clientA"), presence.Id())
	assert.Equal(t, KindInstancePresence, presence.Kind())
	assert.Equal(t, "clientA", presence["userId"])
	assert.Equal(t, "Ada", presence["userName"])
	assert.Equal(t, "#123456", presence["color"])
	assert.Equal(t, "page:p1", presence["currentPageId"])
	assert.Equal(t, map[string]any{"x": 10, "y": 20, "z": 2}, presence["camera"])
	assert.Equal(t, map[string]any{"x": 3, "y": 4}, presence["cursor"])
	assert.Equal(t, []any{"shape:a"}, presence["selectedShapeIds"])
}

func TestDerivePresenceRecomputesFromSource(t *testing.T) {
	store := NewLocalStore("test")
	store.Put([]Record{
		{"id": "instance:inst", "currentPageId": "page:p1"},
		{"id": "camera:cam", "x": 0, "y": 0, "z": 1},
	})
	preferences := UserPreferences{Id: "clientA"}.WithDefaults()
	presenceId := PresenceId("clientA")

	first := DerivePresence(store, preferences, presenceId)
	store.Put([]Record{
		{"id": "camera:cam", "x": 99, "y": 0, "z": 1},
	})
	second := DerivePresence(store, preferences, presenceId)

	assert.NotEqual(t, first, second)
	assert.Equal(t, map[string]any{"x": 99, "y": 0, "z": 1}, second["camera"])
}
