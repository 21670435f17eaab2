package websocket

import (
	"errors"
	"imagedesk/core"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// ImagesChangedEvent is emitted to watchers after an upload is confirmed.
const ImagesChangedEvent = "images-changed"

// Hub lets socket.io clients watch an owner's gallery and pushes a
// notification to them whenever the owner's image set changes.
type Hub struct {
	srv *socketio.Server

	mu       sync.RWMutex
	watchers map[socketio.Room]int
}

func NewHub() *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	h := &Hub{
		srv:      socketio.NewServer(nil, opts),
		watchers: map[socketio.Room]int{},
	}
	h.srv.On("connection", h.onConnection)
	return h
}

func (h *Hub) Server() *socketio.Server {
	return h.srv
}

func (h *Hub) onConnection(clients ...any) {
	socket, ok := clients[0].(*socketio.Socket)
	if !ok {
		return
	}
	log := logrus.WithField("socket_id", socket.Id())

	socket.On("watch-owner", func(datas ...any) {
		owner, err := parseOwner(datas)
		if err != nil {
			log.WithError(err).Warn("Rejected watch request")
			_ = socket.Emit("watch-error", map[string]any{"error": err.Error()})
			return
		}
		room := watchRoom(owner)
		socket.Join(room)
		h.track(room, 1)
		log.WithField("room", room).Debug("Socket watches owner")
		_ = socket.Emit("watching", owner)
	})

	socket.On("disconnecting", func(datas ...any) {
		for _, room := range socket.Rooms().Keys() {
			h.track(room, -1)
		}
	})

	socket.On("disconnect", func(datas ...any) {
		socket.RemoveAllListeners("")
	})
}

func (h *Hub) track(room socketio.Room, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[room]; !ok && delta < 0 {
		return
	}
	h.watchers[room] += delta
	if h.watchers[room] <= 0 {
		delete(h.watchers, room)
	}
}

// Watchers returns how many sockets currently watch owner's gallery.
func (h *Hub) Watchers(owner core.Owner) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.watchers[watchRoom(owner)]
}

// ImagesChanged implements core.Notifier.
func (h *Hub) ImagesChanged(owner core.Owner, imageID string) {
	rooms := notifyRooms(owner)
	op := h.srv.To(rooms[0])
	for _, room := range rooms[1:] {
		op = op.To(room)
	}
	payload := map[string]any{
		"ownerId":          owner.OwnerID,
		"secondaryOwnerId": owner.SecondaryOwnerID,
		"imageId":          imageID,
	}
	if err := op.Emit(ImagesChangedEvent, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"error":    err,
			"owner_id": owner.OwnerID,
			"image_id": imageID,
		}).Warn("Failed to emit images-changed")
	}
}

func watchRoom(owner core.Owner) socketio.Room {
	if owner.SecondaryOwnerID == "" {
		return socketio.Room("owner:" + owner.OwnerID)
	}
	return socketio.Room("owner:" + owner.OwnerID + "/" + owner.SecondaryOwnerID)
}

// notifyRooms lists the rooms whose watchers can see an image stored under
// owner: the owner-wide room and, for site images, the site room.
func notifyRooms(owner core.Owner) []socketio.Room {
	rooms := []socketio.Room{watchRoom(core.Owner{OwnerID: owner.OwnerID})}
	if owner.SecondaryOwnerID != "" {
		rooms = append(rooms, watchRoom(owner))
	}
	return rooms
}

// parseOwner accepts either an owner id string or an object with ownerId and
// secondaryOwnerId fields.
func parseOwner(datas []any) (core.Owner, error) {
	if len(datas) == 0 {
		return core.Owner{}, errors.New("owner is required")
	}
	var owner core.Owner
	switch v := datas[0].(type) {
	case string:
		owner.OwnerID = v
	case map[string]any:
		owner.OwnerID, _ = v["ownerId"].(string)
		owner.SecondaryOwnerID, _ = v["secondaryOwnerId"].(string)
	default:
		return core.Owner{}, errors.New("owner must be a string or an object")
	}
	if err := owner.Validate(); err != nil {
		return core.Owner{}, err
	}
	return owner, nil
}
