package sessions

import (
	"encoding/json"
	"errors"
	"imagedesk/core"
	"imagedesk/editor"
	"imagedesk/gallery"
	"imagedesk/upload"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// MaxImageUpload bounds the body of a gallery upload.
const MaxImageUpload = 20 << 20

func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrSessionNotFound), errors.Is(err, gallery.ErrUnknownCandidate):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalid), errors.Is(err, editor.ErrUnknownTool), errors.Is(err, editor.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, editor.ErrSessionClosed), errors.Is(err, editor.ErrNoImage),
		errors.Is(err, editor.ErrWrongPhase), errors.Is(err, editor.ErrToolUnavailable),
		errors.Is(err, gallery.ErrNoUploader):
		return http.StatusConflict
	case errors.Is(err, editor.ErrImageLoad), errors.Is(err, upload.ErrUploadFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"error": err,
			"path":  r.URL.Path,
		}).Error("Editor request failed")
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

type sessionFunc func(w http.ResponseWriter, r *http.Request, s *editor.Session)

// withSession resolves the {id} path parameter to an editor session.
func withSession(mgr *editor.Manager, fn sessionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := mgr.Session(chi.URLParam(r, "id"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		fn(w, r, s)
	}
}

// stateAfter runs op and answers with the session state, or with op's error.
func stateAfter(mgr *editor.Manager, op func(r *http.Request, s *editor.Session) error) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		if err := op(r, s); err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, s.State())
	})
}

type OpenRequest struct {
	Owner   core.Owner     `json:"owner"`
	Target  core.Target    `json:"target"`
	Options editor.Options `json:"options"`
}

func HandleListEditors(mgr *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, mgr.Names())
	}
}

// HandleOpen starts a session on the named editor instance.
func HandleOpen(mgr *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenRequest
		if !decode(w, r, &req) {
			return
		}
		s, err := mgr.Editor(chi.URLParam(r, "name")).Open(req.Owner, req.Target, req.Options)
		if err != nil {
			renderError(w, r, err)
			return
		}
		if s.Gallery() != nil {
			s.RefreshGallery(r.Context())
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, s.State())
	}
}

func HandleState(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		render.JSON(w, r, s.State())
	})
}

func HandleGallery(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		g := s.Gallery()
		if g == nil {
			renderError(w, r, editor.ErrNoImage)
			return
		}
		render.JSON(w, r, g.Listing())
	})
}

func HandleRefreshGallery(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		listing, err := s.RefreshGallery(r.Context())
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, listing)
	})
}

func HandleSelectCandidate(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var req struct {
			ID string `json:"id"`
		}
		if !decode(w, r, &req) {
			return
		}
		g := s.Gallery()
		if g == nil {
			renderError(w, r, editor.ErrNoImage)
			return
		}
		if req.ID == "" {
			g.ClearSelection()
		} else if err := g.Select(req.ID); err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, g.Listing())
	})
}

// HandleGalleryUpload adds the request body as a new gallery image. The file
// name comes from the fileName query parameter.
func HandleGalleryUpload(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		g := s.Gallery()
		if g == nil {
			renderError(w, r, editor.ErrNoImage)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, MaxImageUpload+1))
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		if len(data) > MaxImageUpload {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, map[string]string{"error": "Image is too large"})
			return
		}
		contentType := r.Header.Get("Content-Type")
		if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
			contentType = http.DetectContentType(data)
		}
		fileName := r.URL.Query().Get("fileName")
		if fileName == "" {
			fileName = "upload"
		}
		c, err := g.UploadNew(r.Context(), data, fileName, contentType)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, c)
	})
}

func HandleEdit(mgr *editor.Manager) http.HandlerFunc {
	return stateAfter(mgr, func(r *http.Request, s *editor.Session) error {
		return s.Edit(r.Context())
	})
}

func HandlePhase(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var req struct {
			Phase editor.Phase `json:"phase"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := s.SetPhase(req.Phase); err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, s.State())
	})
}

func HandleTool(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var req struct {
			Tool string `json:"tool"`
		}
		if !decode(w, r, &req) {
			return
		}
		tool, err := editor.ParseTool(req.Tool)
		if err == nil {
			err = s.SetTool(tool)
		}
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, s.State())
	})
}

func HandleStyle(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var st editor.Style
		if !decode(w, r, &st) {
			return
		}
		if err := s.SetStyle(st); err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, s.State())
	})
}

// TransformRequest is one framing action: pan, scale, rotate or reset.
type TransformRequest struct {
	Action  string  `json:"action"`
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	Scale   float64 `json:"scale"`
	Degrees int     `json:"degrees"`
}

func HandleTransform(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var req TransformRequest
		if !decode(w, r, &req) {
			return
		}
		var err error
		switch req.Action {
		case "pan":
			err = s.Pan(req.DX, req.DY)
		case "scale":
			err = s.SetScale(req.Scale)
		case "rotate":
			err = s.Rotate(req.Degrees)
		case "reset":
			err = s.ResetTransform()
		default:
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Unknown transform action"})
			return
		}
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, s.State())
	})
}

// PointerEvent is a press, move or release in canvas coordinates.
type PointerEvent struct {
	Type  string  `json:"type"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Shift bool    `json:"shift"`
}

// HandlePointer accepts a single event or an array of events applied in order.
func HandlePointer(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		var events []PointerEvent
		if err := json.Unmarshal(body, &events); err != nil {
			var ev PointerEvent
			if err := json.Unmarshal(body, &ev); err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "Invalid request body"})
				return
			}
			events = []PointerEvent{ev}
		}
		for _, ev := range events {
			switch ev.Type {
			case "down":
				err = s.PointerDown(ev.X, ev.Y, ev.Shift)
			case "move":
				err = s.PointerMove(ev.X, ev.Y)
			case "up":
				err = s.PointerUp(ev.X, ev.Y)
			default:
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "Unknown pointer event " + ev.Type})
				return
			}
			if err != nil {
				renderError(w, r, err)
				return
			}
		}
		render.JSON(w, r, s.State())
	})
}

// HandleKey routes a key press through the session's editor instance so only
// that instance's listeners see it.
func HandleKey(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var ev editor.KeyEvent
		if !decode(w, r, &ev) {
			return
		}
		handled := mgr.Editor(s.State().Editor).HandleKey(ev)
		render.JSON(w, r, map[string]any{"handled": handled, "state": s.State()})
	})
}

func HandleSelectItems(mgr *editor.Manager) http.HandlerFunc {
	return stateAfter(mgr, func(r *http.Request, s *editor.Session) error {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return core.ErrInvalid
		}
		_, err := s.SelectItems(req.IDs)
		return err
	})
}

func HandleDrag(mgr *editor.Manager) http.HandlerFunc {
	return stateAfter(mgr, func(r *http.Request, s *editor.Session) error {
		var req struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return core.ErrInvalid
		}
		_, err := s.DragSelected(req.DX, req.DY)
		return err
	})
}

func HandleDeleteSelected(mgr *editor.Manager) http.HandlerFunc {
	return stateAfter(mgr, func(r *http.Request, s *editor.Session) error {
		_, err := s.DeleteSelected()
		return err
	})
}

func HandleUndo(mgr *editor.Manager) http.HandlerFunc {
	return stateAfter(mgr, func(r *http.Request, s *editor.Session) error {
		_, err := s.Undo()
		return err
	})
}

func HandleRedo(mgr *editor.Manager) http.HandlerFunc {
	return stateAfter(mgr, func(r *http.Request, s *editor.Session) error {
		_, err := s.Redo()
		return err
	})
}

// HandlePreview renders one layer (base, overlay or composite) as PNG.
func HandlePreview(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		data, err := s.Preview(r.URL.Query().Get("layer"))
		if err != nil {
			renderError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(data)
	})
}

func HandleApply(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		res, err := s.Apply(r.Context())
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.JSON(w, r, res)
	})
}

func HandleCancel(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		s.Cancel()
		render.JSON(w, r, s.State())
	})
}

// HandleResult serves the exported image of an applied session.
func HandleResult(mgr *editor.Manager) http.HandlerFunc {
	return withSession(mgr, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		if s.Status() == editor.StatusOpen {
			renderError(w, r, editor.ErrNoImage)
			return
		}
		res, err := s.Wait(r.Context())
		if err != nil {
			renderError(w, r, err)
			return
		}
		if res == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", res.ContentType)
		w.Write(res.Blob)
	})
}

// Routes mounts the editor API under /api/v1.
func Routes(r chi.Router, mgr *editor.Manager) {
	r.Get("/editors", HandleListEditors(mgr))
	r.Post("/editors/{name}/sessions", HandleOpen(mgr))
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", HandleState(mgr))
		r.Get("/gallery", HandleGallery(mgr))
		r.Post("/gallery/refresh", HandleRefreshGallery(mgr))
		r.Post("/gallery/select", HandleSelectCandidate(mgr))
		r.Post("/gallery/upload", HandleGalleryUpload(mgr))
		r.Post("/edit", HandleEdit(mgr))
		r.Put("/phase", HandlePhase(mgr))
		r.Put("/tool", HandleTool(mgr))
		r.Put("/style", HandleStyle(mgr))
		r.Post("/transform", HandleTransform(mgr))
		r.Post("/pointer", HandlePointer(mgr))
		r.Post("/keys", HandleKey(mgr))
		r.Post("/select", HandleSelectItems(mgr))
		r.Post("/drag", HandleDrag(mgr))
		r.Post("/delete", HandleDeleteSelected(mgr))
		r.Post("/undo", HandleUndo(mgr))
		r.Post("/redo", HandleRedo(mgr))
		r.Get("/preview", HandlePreview(mgr))
		r.Post("/apply", HandleApply(mgr))
		r.Post("/cancel", HandleCancel(mgr))
		r.Get("/result", HandleResult(mgr))
	})
}
