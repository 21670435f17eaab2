package editor

import (
	"image"
	"math"
	"unicode/utf8"
)

// Style is applied to shapes as they are created.
type Style struct {
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
	Font        string  `json:"font"`
}

func DefaultStyle() Style {
	return Style{Color: "#ff0000", StrokeWidth: 3, Font: DefaultFont}
}

// Marquee is a rubber-band selection rectangle anchored at (X, Y).
type Marquee struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (m Marquee) Box() Box {
	return boxFromCorners(m.X, m.Y, m.X2, m.Y2)
}

// marquees smaller than this on both axes count as a plain click
const minMarquee = 2

type gesture int

const (
	gestureNone gesture = iota
	gestureShape
	gestureDrag
	gestureMarquee
)

// Engine owns the ordered annotation list, the selection and whatever
// gesture is in progress.
type Engine struct {
	items    []Item
	selected map[string]bool
	marquee  *Marquee
	additive bool
	style    Style
	newID    func() string
	hist     *history

	gesture  gesture
	active   Item
	anchor   Point
	last     Point
	moved    bool
	before   []Item
	editing  *Text
	editFrom []Item
}

func NewEngine(newID func() string) *Engine {
	return &Engine{
		selected: map[string]bool{},
		style:    DefaultStyle(),
		newID:    newID,
		hist:     newHistory(defaultHistoryDepth),
	}
}

func (e *Engine) Style() Style { return e.style }

// SetStyle replaces the style used for new shapes. Empty fields keep their
// current value.
func (e *Engine) SetStyle(s Style) error {
	if s.Color != "" {
		if _, err := ParseColor(s.Color); err != nil {
			return err
		}
		e.style.Color = s.Color
	}
	if s.StrokeWidth > 0 {
		e.style.StrokeWidth = s.StrokeWidth
	}
	if s.Font != "" {
		e.style.Font = s.Font
	}
	return nil
}

// BeginShape appends a new item of the tool's kind at (x, y) so it is
// visible while being dragged out. Text items enter inline editing instead.
func (e *Engine) BeginShape(tool Tool, x, y float64) (Item, error) {
	if e.editing != nil {
		e.FinishText()
	}
	id := e.newID()
	st := e.style
	var it Item
	switch tool {
	case ToolRect:
		it = &Rect{ID: id, X: x, Y: y, Color: st.Color, StrokeWidth: st.StrokeWidth}
	case ToolArrow:
		it = &Arrow{ID: id, X: x, Y: y, X2: x, Y2: y, Color: st.Color, StrokeWidth: st.StrokeWidth}
	case ToolCircle:
		it = &Circle{ID: id, X: x, Y: y, Color: st.Color, StrokeWidth: st.StrokeWidth}
	case ToolFreehand:
		it = &Freehand{ID: id, Points: []Point{{X: x, Y: y}}, Color: st.Color, StrokeWidth: st.StrokeWidth}
	case ToolText:
		t := &Text{ID: id, X: x, Y: y, Font: st.Font, Color: st.Color, StrokeWidth: st.StrokeWidth}
		e.editFrom = cloneItems(e.items)
		e.items = append(e.items, t)
		e.editing = t
		return t, nil
	default:
		return nil, ErrToolUnavailable
	}
	e.before = cloneItems(e.items)
	e.items = append(e.items, it)
	e.active = it
	e.anchor = Point{X: x, Y: y}
	e.gesture = gestureShape
	return it, nil
}

// UpdateShape moves the second coordinate of the shape being drawn.
func (e *Engine) UpdateShape(x, y float64) {
	switch s := e.active.(type) {
	case *Rect:
		s.W, s.H = x-e.anchor.X, y-e.anchor.Y
	case *Arrow:
		s.X2, s.Y2 = x, y
	case *Circle:
		s.Radius = math.Hypot(x-s.X, y-s.Y)
	case *Freehand:
		if last := s.Points[len(s.Points)-1]; last.X != x || last.Y != y {
			s.Points = append(s.Points, Point{X: x, Y: y})
		}
	}
}

// CommitShape ends the drawing gesture. Shapes with no extent are dropped
// and nil is returned.
func (e *Engine) CommitShape() Item {
	it := e.active
	e.active = nil
	e.gesture = gestureNone
	if it == nil {
		return nil
	}
	if degenerate(it) {
		e.remove(it.ItemID())
		e.before = nil
		return nil
	}
	e.hist.record(e.before)
	e.before = nil
	return it
}

func degenerate(it Item) bool {
	switch s := it.(type) {
	case *Rect:
		return math.Abs(s.W) < 1 && math.Abs(s.H) < 1
	case *Arrow:
		return math.Hypot(s.X2-s.X, s.Y2-s.Y) < 1
	case *Circle:
		return s.Radius < 1
	case *Freehand:
		return len(s.Points) < 2
	}
	return false
}

// Editing returns the text item being typed into, if any.
func (e *Engine) Editing() *Text {
	return e.editing
}

func (e *Engine) TypeText(s string) {
	if e.editing != nil {
		e.editing.Text += s
	}
}

func (e *Engine) BackspaceText() {
	if e.editing == nil || e.editing.Text == "" {
		return
	}
	_, size := utf8.DecodeLastRuneInString(e.editing.Text)
	e.editing.Text = e.editing.Text[:len(e.editing.Text)-size]
}

// FinishText leaves inline editing. Empty text is discarded.
func (e *Engine) FinishText() {
	t := e.editing
	if t == nil {
		return
	}
	e.editing = nil
	if t.Text == "" {
		e.remove(t.ID)
	} else {
		e.hist.record(e.editFrom)
	}
	e.editFrom = nil
}

// HitTest returns the topmost item whose bounding box contains (x, y).
func (e *Engine) HitTest(x, y float64) Item {
	p := Point{X: x, Y: y}
	for i := len(e.items) - 1; i >= 0; i-- {
		if e.items[i].Bounds().Contains(p) {
			return e.items[i]
		}
	}
	return nil
}

// SelectAt selects the item under (x, y), replacing the selection unless
// additive, in which case the item's membership is toggled. A miss clears
// a non-additive selection.
func (e *Engine) SelectAt(x, y float64, additive bool) Item {
	hit := e.HitTest(x, y)
	if hit == nil {
		if !additive {
			e.ClearSelection()
		}
		return nil
	}
	id := hit.ItemID()
	switch {
	case additive && e.selected[id]:
		delete(e.selected, id)
	case additive:
		e.selected[id] = true
	case !e.selected[id]:
		e.selected = map[string]bool{id: true}
	}
	return hit
}

// Select replaces the selection with the known ids among ids.
func (e *Engine) Select(ids ...string) {
	e.selected = map[string]bool{}
	for _, id := range ids {
		if e.index(id) >= 0 {
			e.selected[id] = true
		}
	}
}

func (e *Engine) ClearSelection() {
	e.selected = map[string]bool{}
	e.marquee = nil
}

// Selected returns the selected ids in item order.
func (e *Engine) Selected() []string {
	ids := make([]string, 0, len(e.selected))
	for _, it := range e.items {
		if e.selected[it.ItemID()] {
			ids = append(ids, it.ItemID())
		}
	}
	return ids
}

func (e *Engine) BeginMarquee(x, y float64, additive bool) {
	e.marquee = &Marquee{X: x, Y: y, X2: x, Y2: y}
	e.additive = additive
	e.gesture = gestureMarquee
}

func (e *Engine) UpdateMarquee(x, y float64) {
	if e.marquee != nil {
		e.marquee.X2, e.marquee.Y2 = x, y
	}
}

// FinishMarquee selects every item whose bounding box lies entirely inside
// the marquee. Items merely overlapping its edge are not selected.
func (e *Engine) FinishMarquee() []string {
	m := e.marquee
	e.marquee = nil
	e.gesture = gestureNone
	if m == nil {
		return e.Selected()
	}
	box := m.Box()
	if box.W < minMarquee && box.H < minMarquee {
		return e.Selected()
	}
	if !e.additive {
		e.selected = map[string]bool{}
	}
	for _, it := range e.items {
		if box.ContainsBox(it.Bounds()) {
			e.selected[it.ItemID()] = true
		}
	}
	return e.Selected()
}

func (e *Engine) beginDrag(x, y float64) {
	e.before = cloneItems(e.items)
	e.last = Point{X: x, Y: y}
	e.moved = false
	e.gesture = gestureDrag
}

func (e *Engine) dragTo(x, y float64) {
	dx, dy := x-e.last.X, y-e.last.Y
	if dx == 0 && dy == 0 {
		return
	}
	e.translateSelected(dx, dy)
	e.last = Point{X: x, Y: y}
	e.moved = true
}

func (e *Engine) endDrag() {
	if e.moved {
		e.hist.record(e.before)
	}
	e.before = nil
	e.moved = false
	e.gesture = gestureNone
}

// DragSelected moves every selected item by (dx, dy).
func (e *Engine) DragSelected(dx, dy float64) int {
	if len(e.selected) == 0 || (dx == 0 && dy == 0) {
		return 0
	}
	e.hist.record(e.items)
	return e.translateSelected(dx, dy)
}

func (e *Engine) translateSelected(dx, dy float64) int {
	n := 0
	for _, it := range e.items {
		if e.selected[it.ItemID()] {
			it.Translate(dx, dy)
			n++
		}
	}
	return n
}

// DeleteSelected removes every selected item and returns how many went.
func (e *Engine) DeleteSelected() int {
	if len(e.selected) == 0 {
		return 0
	}
	e.hist.record(e.items)
	kept := e.items[:0:0]
	for _, it := range e.items {
		if !e.selected[it.ItemID()] {
			kept = append(kept, it)
		}
	}
	n := len(e.items) - len(kept)
	e.items = kept
	e.selected = map[string]bool{}
	return n
}

// PointerDown starts the gesture the tool calls for at (x, y).
func (e *Engine) PointerDown(tool Tool, x, y float64, additive bool) error {
	e.EndGesture()
	if e.editing != nil {
		e.FinishText()
	}
	if tool.IsShape() {
		_, err := e.BeginShape(tool, x, y)
		return err
	}
	hit := e.SelectAt(x, y, additive)
	switch {
	case hit == nil:
		e.BeginMarquee(x, y, additive)
	case e.selected[hit.ItemID()]:
		e.beginDrag(x, y)
	}
	return nil
}

func (e *Engine) PointerMove(x, y float64) {
	switch e.gesture {
	case gestureShape:
		e.UpdateShape(x, y)
	case gestureDrag:
		e.dragTo(x, y)
	case gestureMarquee:
		e.UpdateMarquee(x, y)
	}
}

func (e *Engine) PointerUp(x, y float64) {
	e.PointerMove(x, y)
	e.EndGesture()
}

// EndGesture completes the gesture in progress where it currently stands.
func (e *Engine) EndGesture() {
	switch e.gesture {
	case gestureShape:
		e.CommitShape()
	case gestureDrag:
		e.endDrag()
	case gestureMarquee:
		e.FinishMarquee()
	}
}

// Undo restores the item list before the last edit. It is refused while a
// gesture or text entry is in progress.
func (e *Engine) Undo() bool {
	if e.busy() {
		return false
	}
	items, ok := e.hist.stepBack(e.items)
	if ok {
		e.restore(items)
	}
	return ok
}

func (e *Engine) Redo() bool {
	if e.busy() {
		return false
	}
	items, ok := e.hist.stepForward(e.items)
	if ok {
		e.restore(items)
	}
	return ok
}

func (e *Engine) CanUndo() bool { return !e.busy() && e.hist.canUndo() }
func (e *Engine) CanRedo() bool { return !e.busy() && e.hist.canRedo() }

func (e *Engine) busy() bool {
	return e.gesture != gestureNone || e.editing != nil
}

func (e *Engine) restore(items []Item) {
	e.items = items
	for id := range e.selected {
		if e.index(id) < 0 {
			delete(e.selected, id)
		}
	}
}

// Reset drops every item, the selection and the undo history.
func (e *Engine) Reset() {
	e.items = nil
	e.selected = map[string]bool{}
	e.marquee = nil
	e.gesture = gestureNone
	e.active = nil
	e.editing = nil
	e.before = nil
	e.editFrom = nil
	e.hist.clear()
}

// Items returns copies of the items in drawing order.
func (e *Engine) Items() []Item {
	return cloneItems(e.items)
}

func (e *Engine) Marquee() *Marquee {
	if e.marquee == nil {
		return nil
	}
	m := *e.marquee
	return &m
}

// Render redraws the overlay layer into dst at scale k.
func (e *Engine) Render(dst *image.RGBA, k float64) {
	renderOverlay(dst, e.items, e.selected, e.marquee, k)
}

func (e *Engine) index(id string) int {
	for i, it := range e.items {
		if it.ItemID() == id {
			return i
		}
	}
	return -1
}

func (e *Engine) remove(id string) {
	if i := e.index(id); i >= 0 {
		e.items = append(e.items[:i:i], e.items[i+1:]...)
	}
	delete(e.selected, id)
}
