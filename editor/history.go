package editor

const defaultHistoryDepth = 50

// history keeps item-list snapshots for undo and redo.
type history struct {
	undo  [][]Item
	redo  [][]Item
	depth int
}

func newHistory(depth int) *history {
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	return &history{depth: depth}
}

// record saves the state before an edit. A new edit invalidates redo.
func (h *history) record(before []Item) {
	h.undo = append(h.undo, cloneItems(before))
	if len(h.undo) > h.depth {
		h.undo = h.undo[1:]
	}
	h.redo = h.redo[:0]
}

func (h *history) stepBack(current []Item) ([]Item, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	h.redo = append(h.redo, cloneItems(current))
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	return last, true
}

func (h *history) stepForward(current []Item) ([]Item, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	h.undo = append(h.undo, cloneItems(current))
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	return next, true
}

func (h *history) canUndo() bool { return len(h.undo) > 0 }
func (h *history) canRedo() bool { return len(h.redo) > 0 }

func (h *history) clear() {
	h.undo = h.undo[:0]
	h.redo = h.redo[:0]
}
