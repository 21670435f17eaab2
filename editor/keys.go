package editor

import (
	"strings"
	"sync"
)

// KeyEvent is one key press forwarded by a UI. Key uses DOM key names
// ("Delete", "Escape", "z"); Text carries typed characters, if any.
type KeyEvent struct {
	Key   string `json:"key"`
	Text  string `json:"text,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
}

func (ev KeyEvent) command() bool {
	return ev.Ctrl || ev.Meta
}

func (ev KeyEvent) is(key string) bool {
	return strings.EqualFold(ev.Key, key)
}

// KeyHandler reports whether it consumed the event.
type KeyHandler func(KeyEvent) bool

// Keyboard routes key events to the listeners registered on one editor
// instance. Sessions register on open and remove themselves on close.
type Keyboard struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]KeyHandler
	order     []uint64
}

func NewKeyboard() *Keyboard {
	return &Keyboard{listeners: map[uint64]KeyHandler{}}
}

// Listen adds h and returns the function that removes it.
func (k *Keyboard) Listen(h KeyHandler) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.next++
	id := k.next
	k.listeners[id] = h
	k.order = append(k.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			defer k.mu.Unlock()
			delete(k.listeners, id)
			for i, v := range k.order {
				if v == id {
					k.order = append(k.order[:i:i], k.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch offers ev to the listeners, most recent first, until one consumes it.
func (k *Keyboard) Dispatch(ev KeyEvent) bool {
	k.mu.Lock()
	handlers := make([]KeyHandler, 0, len(k.order))
	for i := len(k.order) - 1; i >= 0; i-- {
		handlers = append(handlers, k.listeners[k.order[i]])
	}
	k.mu.Unlock()

	for _, h := range handlers {
		if h(ev) {
			return true
		}
	}
	return false
}

func (k *Keyboard) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.listeners)
}
