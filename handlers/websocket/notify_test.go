package websocket

import (
	"imagedesk/core"
	"testing"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name    string
		datas   []any
		want    core.Owner
		wantErr bool
	}{
		{"string id", []any{"client-1"}, core.Owner{OwnerID: "client-1"}, false},
		{"object", []any{map[string]any{"ownerId": "client-1", "secondaryOwnerId": "site-2"}}, core.Owner{OwnerID: "client-1", SecondaryOwnerID: "site-2"}, false},
		{"empty", nil, core.Owner{}, true},
		{"number", []any{42.0}, core.Owner{}, true},
		{"path id", []any{"a/b"}, core.Owner{}, true},
		{"object without id", []any{map[string]any{"secondaryOwnerId": "s"}}, core.Owner{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOwner(tt.datas)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOwner() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseOwner() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNotifyRooms(t *testing.T) {
	rooms := notifyRooms(core.Owner{OwnerID: "c1", SecondaryOwnerID: "s1"})
	if len(rooms) != 2 || rooms[0] != socketio.Room("owner:c1") || rooms[1] != socketio.Room("owner:c1/s1") {
		t.Errorf("notifyRooms(site image) = %v", rooms)
	}
	rooms = notifyRooms(core.Owner{OwnerID: "c1"})
	if len(rooms) != 1 || rooms[0] != socketio.Room("owner:c1") {
		t.Errorf("notifyRooms(client image) = %v", rooms)
	}
}

func TestTrackWatchers(t *testing.T) {
	h := &Hub{watchers: map[socketio.Room]int{}}
	owner := core.Owner{OwnerID: "c1", SecondaryOwnerID: "s1"}
	room := watchRoom(owner)

	h.track(room, 1)
	h.track(room, 1)
	if n := h.Watchers(owner); n != 2 {
		t.Errorf("Watchers() = %d, want 2", n)
	}
	h.track(room, -1)
	h.track(room, -1)
	h.track(room, -1)
	if n := h.Watchers(owner); n != 0 {
		t.Errorf("Watchers() after leaving = %d, want 0", n)
	}
	// rooms never watched, such as a socket's own id room, are ignored
	h.track(socketio.Room("abc"), -1)
	if len(h.watchers) != 0 {
		t.Errorf("watchers = %v, want empty", h.watchers)
	}
}
