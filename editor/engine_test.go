package editor

import (
	"fmt"
	"reflect"
	"testing"
)

func newTestEngine() *Engine {
	n := 0
	return NewEngine(func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	})
}

func drawShape(t *testing.T, e *Engine, tool Tool, x0, y0, x1, y1 float64) Item {
	t.Helper()
	if err := e.PointerDown(tool, x0, y0, false); err != nil {
		t.Fatalf("PointerDown(%s) failed: %v", tool, err)
	}
	e.PointerMove((x0+x1)/2, (y0+y1)/2)
	e.PointerUp(x1, y1)
	items := e.Items()
	if len(items) == 0 {
		t.Fatalf("no item after drawing %s", tool)
	}
	return items[len(items)-1]
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ItemID()
	}
	return out
}

func TestHitTest_Rect(t *testing.T) {
	e := newTestEngine()
	r := drawShape(t, e, ToolRect, 10, 10, 60, 40)

	if got := r.Bounds(); got != (Box{X: 10, Y: 10, W: 50, H: 30}) {
		t.Fatalf("Bounds() = %+v, want {10 10 50 30}", got)
	}
	if hit := e.HitTest(30, 20); hit == nil || hit.ItemID() != r.ItemID() {
		t.Errorf("HitTest(30, 20) = %v, want the rectangle", hit)
	}
	if hit := e.HitTest(5, 5); hit != nil {
		t.Errorf("HitTest(5, 5) = %v, want nil", hit)
	}
}

func TestHitTest_NegativeExtent(t *testing.T) {
	e := newTestEngine()
	drawShape(t, e, ToolRect, 60, 40, 10, 10)

	items := e.Items()
	r := items[0].(*Rect)
	if r.W >= 0 || r.H >= 0 {
		t.Fatalf("expected negative extents, got w=%v h=%v", r.W, r.H)
	}
	if e.HitTest(30, 20) == nil {
		t.Error("HitTest(30, 20) should hit a rectangle dragged up and left")
	}
}

func TestHitTest_TopmostFirst(t *testing.T) {
	e := newTestEngine()
	drawShape(t, e, ToolRect, 0, 0, 100, 100)
	top := drawShape(t, e, ToolCircle, 50, 50, 60, 50)

	if hit := e.HitTest(50, 50); hit == nil || hit.ItemID() != top.ItemID() {
		t.Errorf("HitTest() = %v, want the later item", hit)
	}
}

func TestBounds_PerKind(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want Box
	}{
		{"arrow", &Arrow{X: 50, Y: 10, X2: 10, Y2: 40}, Box{X: 10, Y: 10, W: 40, H: 30}},
		{"circle", &Circle{X: 20, Y: 30, Radius: 5}, Box{X: 15, Y: 25, W: 10, H: 10}},
		{"freehand", &Freehand{Points: []Point{{5, 9}, {1, 3}, {7, 4}}}, Box{X: 1, Y: 3, W: 6, H: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Bounds(); got != tt.want {
				t.Errorf("Bounds() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBounds_Text(t *testing.T) {
	txt := &Text{X: 10, Y: 50, Text: "Hello", Font: "20px sans-serif"}
	b := txt.Bounds()
	if b.X != 10 || b.Y != 30 || b.H != 20 {
		t.Errorf("Bounds() = %+v, want x=10 y=30 h=20", b)
	}
	if b.W <= 0 {
		t.Errorf("measured width should be positive, got %v", b.W)
	}
}

func TestFinishMarquee_FullContainmentOnly(t *testing.T) {
	e := newTestEngine()
	a := drawShape(t, e, ToolRect, 10, 10, 30, 30)
	b := drawShape(t, e, ToolCircle, 50, 50, 55, 50)
	drawShape(t, e, ToolRect, 80, 80, 120, 120)

	if err := e.PointerDown(ToolSelect, 0, 0, false); err != nil {
		t.Fatal(err)
	}
	e.PointerMove(50, 50)
	if e.Marquee() == nil {
		t.Fatal("marquee should be active while dragging on empty space")
	}
	e.PointerUp(100, 100)

	want := []string{a.ItemID(), b.ItemID()}
	if got := e.Selected(); !reflect.DeepEqual(got, want) {
		t.Errorf("Selected() = %v, want %v", got, want)
	}
	if e.Marquee() != nil {
		t.Error("marquee should be cleared after finishing")
	}
}

func TestFinishMarquee_AdditiveUnion(t *testing.T) {
	e := newTestEngine()
	a := drawShape(t, e, ToolRect, 10, 10, 20, 20)
	b := drawShape(t, e, ToolRect, 100, 100, 110, 110)
	e.Select(a.ItemID())

	e.BeginMarquee(90, 90, true)
	e.UpdateMarquee(120, 120)
	got := e.FinishMarquee()
	if want := []string{a.ItemID(), b.ItemID()}; !reflect.DeepEqual(got, want) {
		t.Errorf("FinishMarquee() = %v, want %v", got, want)
	}
}

func TestDeleteSelected_RemovesExactlySelected(t *testing.T) {
	e := newTestEngine()
	a := drawShape(t, e, ToolRect, 0, 0, 10, 10)
	b := drawShape(t, e, ToolRect, 20, 20, 30, 30)
	c := drawShape(t, e, ToolRect, 40, 40, 50, 50)
	e.Select(b.ItemID())

	if n := e.DeleteSelected(); n != 1 {
		t.Errorf("DeleteSelected() = %d, want 1", n)
	}
	if got, want := ids(e.Items()), []string{a.ItemID(), c.ItemID()}; !reflect.DeepEqual(got, want) {
		t.Errorf("items = %v, want %v", got, want)
	}
	if len(e.Selected()) != 0 {
		t.Error("selection should be empty after delete")
	}
}

func TestDragSelected_MovesAllPoints(t *testing.T) {
	e := newTestEngine()
	arrow := drawShape(t, e, ToolArrow, 10, 10, 50, 20)
	path := drawShape(t, e, ToolFreehand, 0, 0, 8, 8)
	e.Select(arrow.ItemID(), path.ItemID())

	if n := e.DragSelected(5, -2); n != 2 {
		t.Fatalf("DragSelected() moved %d items, want 2", n)
	}
	items := e.Items()
	a := items[0].(*Arrow)
	if a.X != 15 || a.Y != 8 || a.X2 != 55 || a.Y2 != 18 {
		t.Errorf("arrow = %+v, want both endpoints shifted", a)
	}
	f := items[1].(*Freehand)
	want := []Point{{5, -2}, {9, 2}, {13, 6}}
	if !reflect.DeepEqual(f.Points, want) {
		t.Errorf("freehand points = %v, want %v", f.Points, want)
	}
}

func TestPointerDrag_MovesSelection(t *testing.T) {
	e := newTestEngine()
	r := drawShape(t, e, ToolRect, 10, 10, 20, 20)

	_ = e.PointerDown(ToolSelect, 15, 15, false)
	e.PointerMove(25, 15)
	e.PointerUp(35, 20)

	got := e.Items()[0].Bounds()
	if got != (Box{X: 30, Y: 15, W: 10, H: 10}) {
		t.Errorf("after drag Bounds() = %+v", got)
	}
	if sel := e.Selected(); len(sel) != 1 || sel[0] != r.ItemID() {
		t.Errorf("Selected() = %v, want the dragged item", sel)
	}
}

func TestSelectAt(t *testing.T) {
	e := newTestEngine()
	a := drawShape(t, e, ToolRect, 0, 0, 10, 10)
	b := drawShape(t, e, ToolRect, 20, 0, 30, 10)

	e.SelectAt(5, 5, false)
	e.SelectAt(25, 5, true)
	if got := e.Selected(); !reflect.DeepEqual(got, []string{a.ItemID(), b.ItemID()}) {
		t.Errorf("additive select = %v", got)
	}
	e.SelectAt(5, 5, true)
	if got := e.Selected(); !reflect.DeepEqual(got, []string{b.ItemID()}) {
		t.Errorf("additive click should toggle off, got %v", got)
	}
	e.SelectAt(5, 5, false)
	if got := e.Selected(); !reflect.DeepEqual(got, []string{a.ItemID()}) {
		t.Errorf("plain click should replace, got %v", got)
	}
	e.SelectAt(200, 200, false)
	if len(e.Selected()) != 0 {
		t.Error("clicking empty space should clear the selection")
	}
}

func TestCommitShape_DropsDegenerate(t *testing.T) {
	for _, tool := range []Tool{ToolRect, ToolArrow, ToolCircle, ToolFreehand} {
		t.Run(string(tool), func(t *testing.T) {
			e := newTestEngine()
			_ = e.PointerDown(tool, 10, 10, false)
			e.PointerUp(10, 10)
			if n := len(e.Items()); n != 0 {
				t.Errorf("zero-size %s should be dropped, have %d items", tool, n)
			}
			if e.CanUndo() {
				t.Error("a dropped shape should not be undoable")
			}
		})
	}
}

func TestBeginShape_VisibleWhileDragging(t *testing.T) {
	e := newTestEngine()
	_ = e.PointerDown(ToolCircle, 40, 40, false)
	if len(e.Items()) != 1 {
		t.Fatal("shape should be appended on pointer down")
	}
	e.PointerMove(43, 44)
	if c := e.Items()[0].(*Circle); c.Radius != 5 {
		t.Errorf("radius = %v, want 5", c.Radius)
	}
}

func TestTextEditing(t *testing.T) {
	e := newTestEngine()
	_ = e.PointerDown(ToolText, 10, 40, false)
	if e.Editing() == nil {
		t.Fatal("text tool should enter editing")
	}
	e.TypeText("Hi")
	e.TypeText("!é")
	e.BackspaceText()
	e.FinishText()

	items := e.Items()
	if len(items) != 1 || items[0].(*Text).Text != "Hi!" {
		t.Fatalf("items = %+v, want one text 'Hi!'", items)
	}

	_ = e.PointerDown(ToolText, 10, 80, false)
	e.FinishText()
	if len(e.Items()) != 1 {
		t.Error("empty text should be discarded")
	}
}

func TestIDsAreUnique(t *testing.T) {
	e := newTestEngine()
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		it := drawShape(t, e, ToolRect, float64(i), 0, float64(i)+5, 5)
		if seen[it.ItemID()] {
			t.Fatalf("duplicate id %s", it.ItemID())
		}
		seen[it.ItemID()] = true
	}
}

func TestUndoRedo(t *testing.T) {
	e := newTestEngine()
	a := drawShape(t, e, ToolRect, 0, 0, 10, 10)
	b := drawShape(t, e, ToolRect, 20, 20, 30, 30)
	e.Select(a.ItemID())
	e.DeleteSelected()

	if !e.Undo() {
		t.Fatal("Undo() after delete should succeed")
	}
	if got := ids(e.Items()); !reflect.DeepEqual(got, []string{a.ItemID(), b.ItemID()}) {
		t.Errorf("after undo items = %v", got)
	}
	e.Undo()
	if got := ids(e.Items()); !reflect.DeepEqual(got, []string{a.ItemID()}) {
		t.Errorf("after second undo items = %v", got)
	}
	if !e.Redo() || !e.Redo() {
		t.Fatal("Redo() should replay both steps")
	}
	if got := ids(e.Items()); !reflect.DeepEqual(got, []string{b.ItemID()}) {
		t.Errorf("after redo items = %v", got)
	}
	if e.Redo() {
		t.Error("nothing left to redo")
	}
}

func TestUndo_NewEditClearsRedo(t *testing.T) {
	e := newTestEngine()
	drawShape(t, e, ToolRect, 0, 0, 10, 10)
	e.Undo()
	drawShape(t, e, ToolRect, 5, 5, 15, 15)
	if e.CanRedo() {
		t.Error("a new edit should invalidate redo")
	}
}

func TestHistory_DepthBounded(t *testing.T) {
	h := newHistory(3)
	for i := 0; i < 5; i++ {
		h.record(nil)
	}
	if len(h.undo) != 3 {
		t.Errorf("undo depth = %d, want 3", len(h.undo))
	}
}

func TestItems_MarshalCarriesKind(t *testing.T) {
	data, err := (&Rect{ID: "r1", W: 5}).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() failed: %v", err)
	}
	want := `{"kind":"rect","id":"r1","x":0,"y":0,"w":5,"h":0,"color":"","strokeWidth":0}`
	if string(data) != want {
		t.Errorf("MarshalJSON() = %s, want %s", data, want)
	}
}
