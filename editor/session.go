package editor

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"imagedesk/core"
	"imagedesk/gallery"
	"imagedesk/upload"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	_ "image/gif"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PixelSource fetches a decodable rendition of an image, ideally resized to width.
type PixelSource interface {
	FetchPixels(ctx context.Context, imageID string, width int) (io.ReadCloser, error)
}

type Status string

const (
	StatusOpen      Status = "open"
	StatusApplied   Status = "applied"
	StatusCancelled Status = "cancelled"
	// StatusDiscarded marks a session replaced by a newer open of its editor.
	StatusDiscarded Status = "discarded"
)

// Result is what an applied session resolves with. ImageRef is set only when
// the export was persisted.
type Result struct {
	ImageRef     string `json:"imageRef,omitempty"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Blob         []byte `json:"-"`
}

// Session is one editing pass over one image. Every method is serialised on
// the session's mutex, the way a UI event loop would run handlers.
type Session struct {
	mu sync.Mutex

	id       string
	instance string
	owner    core.Owner
	target   core.Target
	opts     Options
	pixels   PixelSource
	uploader *upload.Uploader
	gallery  *gallery.Gallery
	log      *logrus.Entry

	candidate *core.ImageCandidate
	source    image.Image
	loadSeq   int
	transform TransformState
	modes     modes
	engine    *Engine
	panFrom   *Point

	exported *upload.Blob
	notices  []Notice

	status   Status
	result   *Result
	done     chan struct{}
	unlisten func()

	encode func(w io.Writer, img image.Image, format string, quality int) error
	now    func() time.Time
}

func newSession(instance string, owner core.Owner, target core.Target, opts Options, c Collaborators) *Session {
	s := &Session{
		id:        ulid.Make().String(),
		instance:  instance,
		owner:     owner,
		target:    target,
		opts:      opts,
		pixels:    c.Pixels,
		uploader:  c.Uploader,
		transform: identityTransform(target.Aspect()),
		modes:     newModes(),
		status:    StatusOpen,
		done:      make(chan struct{}),
		encode:    encodeImage,
		now:       time.Now,
	}
	if c.Images != nil {
		s.gallery = gallery.New(owner, c.Images, c.Uploader)
	}
	s.log = logrus.WithFields(logrus.Fields{
		"session_id": s.id,
		"editor":     instance,
		"owner_id":   owner.OwnerID,
	})
	entropy := ulid.Monotonic(rand.Reader, 0)
	s.engine = NewEngine(func() string {
		return ulid.MustNew(ulid.Timestamp(s.now()), entropy).String()
	})
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Owner() core.Owner   { return s.owner }
func (s *Session) Target() core.Target { return s.target }

// Gallery returns the candidate list of the session's owner, or nil when the
// editor has no image source.
func (s *Session) Gallery() *gallery.Gallery {
	return s.gallery
}

// RefreshGallery reloads the candidates. Failures are flagged in the listing.
func (s *Session) RefreshGallery(ctx context.Context) (gallery.Listing, error) {
	if s.gallery == nil {
		return gallery.Listing{}, ErrNoImage
	}
	listing := s.gallery.Refresh(ctx)
	if listing.Failed {
		s.notify(NoticeWarning, NoticeLoadFailure, "Failed to load images")
	}
	return listing, nil
}

// Edit loads the candidate selected in the gallery.
func (s *Session) Edit(ctx context.Context) error {
	if s.gallery == nil {
		return ErrNoImage
	}
	c, ok := s.gallery.Selected()
	if !ok {
		s.notify(NoticeWarning, NoticeValidation, "Choose an image first")
		return ErrNoImage
	}
	return s.Load(ctx, c)
}

// Load fetches and decodes the candidate's pixels and starts editing it with
// an identity transform and no annotations. A failed load leaves the session
// without an image.
func (s *Session) Load(ctx context.Context, c core.ImageCandidate) error {
	s.mu.Lock()
	if s.status != StatusOpen {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.loadSeq++
	seq := s.loadSeq
	width := s.opts.PreviewWidth
	if width <= 0 {
		width = s.target.Width * s.opts.ExportScale
	}
	s.mu.Unlock()

	img, err := s.fetch(ctx, c.ID, width)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen {
		return ErrSessionClosed
	}
	if seq != s.loadSeq {
		// a later load owns the session now
		return nil
	}
	log := s.log.WithField("image_id", c.ID)
	if err != nil {
		s.source, s.candidate = nil, nil
		log.WithError(err).Warn("Failed to load image")
		s.noticeLocked(NoticeError, NoticeLoadFailure, "Failed to load the image")
		return fmt.Errorf("%w: %v", ErrImageLoad, err)
	}

	cand := c
	s.candidate = &cand
	s.source = img
	s.transform = identityTransform(s.target.Aspect())
	s.modes = newModes()
	s.engine.Reset()
	s.panFrom = nil
	s.exported = nil
	b := img.Bounds()
	log.WithFields(logrus.Fields{"width": b.Dx(), "height": b.Dy()}).Info("Image loaded")
	return nil
}

func (s *Session) fetch(ctx context.Context, id string, width int) (image.Image, error) {
	if s.pixels == nil {
		return nil, fmt.Errorf("no pixel source")
	}
	rc, err := s.pixels.FetchPixels(ctx, id, width)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// SetPhase switches between framing the image and annotating it.
func (s *Session) SetPhase(p Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if p == PhaseImage {
		s.settleLocked()
	}
	s.panFrom = nil
	return s.modes.setPhase(p)
}

// SetTool activates t. Any tool other than select drops the selection.
func (s *Session) SetTool(t Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen {
		return ErrSessionClosed
	}
	if err := s.modes.setTool(t); err != nil {
		return err
	}
	s.engine.FinishText()
	if t != ToolSelect {
		s.engine.ClearSelection()
	}
	return nil
}

func (s *Session) SetStyle(st Style) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen {
		return ErrSessionClosed
	}
	return s.engine.SetStyle(st)
}

// Pan moves the image; only in image phase.
func (s *Session) Pan(dx, dy float64) error {
	return s.framing(func(t *TransformState) error {
		t.Pan(dx, dy)
		return nil
	})
}

func (s *Session) SetScale(v float64) error {
	return s.framing(func(t *TransformState) error {
		if v <= 0 {
			return fmt.Errorf("%w: scale must be positive, got %v", core.ErrInvalid, v)
		}
		t.SetScale(v)
		return nil
	})
}

func (s *Session) Rotate(delta int) error {
	return s.framing(func(t *TransformState) error {
		return t.Rotate(delta)
	})
}

func (s *Session) ResetTransform() error {
	return s.framing(func(t *TransformState) error {
		t.Reset()
		return nil
	})
}

func (s *Session) framing(fn func(*TransformState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.modes.phase != PhaseImage {
		return ErrWrongPhase
	}
	if err := fn(&s.transform); err != nil {
		return err
	}
	s.exported = nil
	return nil
}

// PointerDown routes a press to the transform stage in image phase and to
// the annotation engine in notes phase.
func (s *Session) PointerDown(x, y float64, shift bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if !s.modes.overlayActive() {
		s.panFrom = &Point{X: x, Y: y}
		return nil
	}
	s.exported = nil
	return s.engine.PointerDown(s.modes.tool, x, y, shift)
}

func (s *Session) PointerMove(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if !s.modes.overlayActive() {
		if s.panFrom != nil {
			s.transform.Pan(x-s.panFrom.X, y-s.panFrom.Y)
			s.panFrom = &Point{X: x, Y: y}
			s.exported = nil
		}
		return nil
	}
	s.engine.PointerMove(x, y)
	return nil
}

func (s *Session) PointerUp(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return err
	}
	if !s.modes.overlayActive() {
		if s.panFrom != nil {
			if dx, dy := x-s.panFrom.X, y-s.panFrom.Y; dx != 0 || dy != 0 {
				s.transform.Pan(dx, dy)
				s.exported = nil
			}
			s.panFrom = nil
		}
		return nil
	}
	s.engine.PointerUp(x, y)
	return nil
}

// HandleKey is the session's keyboard listener. It only acts in notes phase.
func (s *Session) HandleKey(ev KeyEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen || s.source == nil || s.modes.phase != PhaseNotes {
		return false
	}
	if !s.keyLocked(ev) {
		return false
	}
	s.exported = nil
	return true
}

func (s *Session) keyLocked(ev KeyEvent) bool {
	e := s.engine
	if e.Editing() != nil {
		switch {
		case ev.is("Enter"), ev.is("Escape"):
			e.FinishText()
		case ev.is("Backspace"):
			e.BackspaceText()
		case ev.command():
			return false
		case ev.Text != "":
			e.TypeText(ev.Text)
		case len([]rune(ev.Key)) == 1:
			e.TypeText(ev.Key)
		default:
			return false
		}
		return true
	}

	switch {
	case ev.command() && ev.is("z") && ev.Shift, ev.command() && ev.is("y"):
		return e.Redo()
	case ev.command() && ev.is("z"):
		return e.Undo()
	case ev.is("Delete"), ev.is("Backspace"):
		return e.DeleteSelected() > 0
	case ev.is("Escape"):
		if len(e.Selected()) == 0 {
			return false
		}
		e.ClearSelection()
		return true
	}
	return false
}

func (s *Session) annotating(fn func(e *Engine) int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return 0, err
	}
	if s.modes.phase != PhaseNotes {
		return 0, ErrWrongPhase
	}
	s.exported = nil
	return fn(s.engine), nil
}

func (s *Session) DeleteSelected() (int, error) {
	return s.annotating(func(e *Engine) int { return e.DeleteSelected() })
}

func (s *Session) DragSelected(dx, dy float64) (int, error) {
	return s.annotating(func(e *Engine) int { return e.DragSelected(dx, dy) })
}

func (s *Session) SelectItems(ids []string) (int, error) {
	return s.annotating(func(e *Engine) int {
		e.Select(ids...)
		return len(e.Selected())
	})
}

func (s *Session) Undo() (bool, error) {
	n, err := s.annotating(func(e *Engine) int { return boolInt(e.Undo()) })
	return n == 1, err
}

func (s *Session) Redo() (bool, error) {
	n, err := s.annotating(func(e *Engine) int { return boolInt(e.Redo()) })
	return n == 1, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RenderBase draws the framed image at k times the target size.
func (s *Session) RenderBase(k int) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, ErrNoImage
	}
	return s.baseLocked(k), nil
}

// RenderOverlay draws the annotations on a transparent layer at k times the
// target size.
func (s *Session) RenderOverlay(k int) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlayLocked(k)
}

// Flatten composites the overlay onto the base at the export scale. Like
// Apply, it first ends any gesture in progress and clears the selection, so
// the result never carries selection outlines or a marquee.
func (s *Session) Flatten() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, ErrNoImage
	}
	s.settleLocked()
	return s.flattenLocked(s.opts.ExportScale), nil
}

// Rasterize encodes the flattened export in format ("png" or "jpeg").
func (s *Session) Rasterize(format string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, ErrNoImage
	}
	s.settleLocked()
	return s.rasterizeLocked(format)
}

// Layer names accepted by Preview.
const (
	LayerBase      = "base"
	LayerOverlay   = "overlay"
	LayerComposite = "composite"
)

// Preview encodes one layer as PNG at working resolution.
func (s *Session) Preview(layer string) ([]byte, error) {
	s.mu.Lock()
	var img *image.RGBA
	switch layer {
	case LayerOverlay:
		img = s.overlayLocked(1)
	case LayerBase, LayerComposite, "":
		if s.source == nil {
			s.mu.Unlock()
			return nil, ErrNoImage
		}
		if layer == LayerBase {
			img = s.baseLocked(1)
		} else {
			img = s.flattenLocked(1)
		}
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown layer %q", core.ErrInvalid, layer)
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Session) baseLocked(k int) *image.RGBA {
	dst := newLayer(s.target.Width*k, s.target.Height*k)
	bg := colorOr(s.opts.Background, paper)
	// source pixels are taken at export density
	t := s.transform
	t.Scale /= float64(s.opts.ExportScale)
	renderBase(dst, s.source, t, float64(k), bg)
	return dst
}

func (s *Session) overlayLocked(k int) *image.RGBA {
	dst := newLayer(s.target.Width*k, s.target.Height*k)
	s.engine.Render(dst, float64(k))
	return dst
}

func (s *Session) flattenLocked(k int) *image.RGBA {
	base := s.baseLocked(k)
	overlay := s.overlayLocked(k)
	draw.Draw(base, base.Bounds(), overlay, image.Point{}, draw.Over)
	return base
}

func (s *Session) rasterizeLocked(format string) ([]byte, error) {
	f, err := normalizeFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterize, err)
	}
	img := s.flattenLocked(s.opts.ExportScale)
	var buf bytes.Buffer
	if err := s.encode(&buf, img, f, s.opts.JPEGQuality); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRasterize, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: encoder produced no data", ErrRasterize)
	}
	return buf.Bytes(), nil
}

func encodeImage(w io.Writer, img image.Image, format string, quality int) error {
	if format == "jpeg" {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
	return png.Encode(w, img)
}

// Apply exports the session and resolves it. With UploadOnApply the export is
// persisted first; a failed upload keeps both the session and the encoded
// export so Apply can be retried without re-encoding.
func (s *Session) Apply(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen {
		return nil, ErrSessionClosed
	}
	if s.source == nil || s.candidate == nil {
		s.noticeLocked(NoticeWarning, NoticeValidation, "Choose an image first")
		return nil, ErrNoImage
	}
	s.settleLocked()

	format, _ := normalizeFormat(s.opts.Format)
	blob := s.exported
	if blob == nil {
		data, err := s.rasterizeLocked(format)
		if err != nil {
			s.log.WithError(err).Error("Failed to rasterize export")
			s.noticeLocked(NoticeError, NoticeRasterizeFailure, "Could not export the image, please try again")
			return nil, err
		}
		blob = &upload.Blob{Data: data, FileName: s.exportName(format), ContentType: contentTypeFor(format)}
	}

	res := &Result{
		OriginalName: s.candidate.DisplayName,
		ContentType:  blob.ContentType,
		Width:        s.target.Width * s.opts.ExportScale,
		Height:       s.target.Height * s.opts.ExportScale,
		Blob:         blob.Data,
	}

	if s.opts.UploadOnApply && s.uploader != nil {
		confirmed, err := s.uploader.Upload(ctx, s.owner, blob)
		if err != nil {
			s.exported = blob
			s.noticeLocked(NoticeError, NoticeUploadFailure, "Upload failed, please try again")
			return nil, err
		}
		res.ImageRef = confirmed.ConfirmedID
		if s.gallery != nil {
			s.gallery.Refresh(ctx)
		}
	}

	s.noticeLocked(NoticeInfo, NoticeApplied, "Image saved")
	s.finishLocked(StatusApplied, res)
	return res, nil
}

// Cancel discards the session. It resolves with no result and touches nothing
// outside the session.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(StatusCancelled, nil)
}

func (s *Session) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(StatusDiscarded, nil)
}

func (s *Session) finishLocked(status Status, res *Result) {
	if s.status != StatusOpen {
		return
	}
	s.status = status
	s.result = res
	if s.unlisten != nil {
		s.unlisten()
	}
	close(s.done)
	s.log.WithField("status", status).Info("Editor session closed")
}

// Done is closed once the session is applied, cancelled or discarded.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session resolves. A nil result means it was not applied.
func (s *Session) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Notices returns the user-visible messages raised so far.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

func (s *Session) notify(level NoticeLevel, kind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noticeLocked(level, kind, msg)
}

func (s *Session) noticeLocked(level NoticeLevel, kind, msg string) {
	s.notices = append(s.notices, Notice{Level: level, Kind: kind, Message: msg, At: s.now()})
}

// settleLocked ends any text entry or pointer gesture and drops the selection.
func (s *Session) settleLocked() {
	s.engine.FinishText()
	s.engine.EndGesture()
	s.engine.ClearSelection()
	s.panFrom = nil
}

func (s *Session) usableLocked() error {
	if s.status != StatusOpen {
		return ErrSessionClosed
	}
	if s.source == nil {
		return ErrNoImage
	}
	return nil
}

func (s *Session) exportName(format string) string {
	name := "image"
	if s.candidate != nil && s.candidate.DisplayName != "" {
		name = s.candidate.DisplayName
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	return name + "-annotated" + extensionFor(format)
}

// State is a read-only view of a session for UIs.
type State struct {
	ID            string               `json:"id"`
	Editor        string               `json:"editor"`
	Status        Status               `json:"status"`
	Owner         core.Owner           `json:"owner"`
	Target        core.Target          `json:"target"`
	ExportScale   int                  `json:"exportScale"`
	Candidate     *core.ImageCandidate `json:"candidate,omitempty"`
	Phase         Phase                `json:"phase"`
	Tool          Tool                 `json:"tool"`
	VisibleTools  []Tool               `json:"visibleTools"`
	Transform     TransformState       `json:"transform"`
	Style         Style                `json:"style"`
	Items         []Item               `json:"items"`
	SelectedIDs   []string             `json:"selectedIds"`
	Marquee       *Marquee             `json:"marquee,omitempty"`
	EditingTextID string               `json:"editingTextId,omitempty"`
	CanApply      bool                 `json:"canApply"`
	CanUndo       bool                 `json:"canUndo"`
	CanRedo       bool                 `json:"canRedo"`
	ExportHeld    bool                 `json:"exportHeld"`
	Notices       []Notice             `json:"notices"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:           s.id,
		Editor:       s.instance,
		Status:       s.status,
		Owner:        s.owner,
		Target:       s.target,
		ExportScale:  s.opts.ExportScale,
		Phase:        s.modes.phase,
		Tool:         s.modes.tool,
		VisibleTools: VisibleTools(s.modes.phase),
		Transform:    s.transform,
		Style:        s.engine.Style(),
		Items:        s.engine.Items(),
		SelectedIDs:  s.engine.Selected(),
		Marquee:      s.engine.Marquee(),
		CanApply:     s.status == StatusOpen && s.source != nil,
		CanUndo:      s.engine.CanUndo(),
		CanRedo:      s.engine.CanRedo(),
		ExportHeld:   s.exported != nil,
		Notices:      append([]Notice{}, s.notices...),
	}
	if s.candidate != nil {
		c := *s.candidate
		st.Candidate = &c
	}
	if t := s.engine.Editing(); t != nil {
		st.EditingTextID = t.ID
	}
	return st
}
