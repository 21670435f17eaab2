package images

import (
	"encoding/json"
	"errors"
	"fmt"
	"imagedesk/core"
	"imagedesk/files"
	"imagedesk/middleware"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// statusFor maps file service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, files.ErrSlotExpired):
		return http.StatusGone
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, files.ErrChecksumMismatch), errors.Is(err, files.ErrSizeMismatch), errors.Is(err, files.ErrNotAnImage):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func renderServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"error": err,
			"path":  r.URL.Path,
		}).Error(msg)
		renderError(w, r, status, msg)
		return
	}
	renderError(w, r, status, err.Error())
}

func HandleListImages(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := core.Owner{
			OwnerID:          chi.URLParam(r, "ownerId"),
			SecondaryOwnerID: r.URL.Query().Get("secondaryOwnerId"),
		}
		infos, err := svc.ListImages(r.Context(), owner)
		if err != nil {
			renderServiceError(w, r, err, "Failed to list images")
			return
		}
		render.JSON(w, r, infos)
	}
}

func HandlePreview(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width := 0
		if v := r.URL.Query().Get("width"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				renderError(w, r, http.StatusBadRequest, "width must be a non-negative integer")
				return
			}
			width = n
		}
		servePreview(w, r, svc, width)
	}
}

func HandleThumbnail(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		servePreview(w, r, svc, files.ThumbnailWidth)
	}
}

func servePreview(w http.ResponseWriter, r *http.Request, svc *files.Service, width int) {
	id := chi.URLParam(r, "id")
	rendition, err := svc.Preview(r.Context(), id, width)
	if err != nil {
		renderServiceError(w, r, err, "Failed to render preview")
		return
	}
	w.Header().Set("Content-Type", rendition.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Write(rendition.Data)
}

func HandleOriginal(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, data, err := svc.Original(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			renderServiceError(w, r, err, "Failed to read image")
			return
		}
		w.Header().Set("Content-Type", img.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", img.DisplayName))
		w.Write(data)
	}
}

func HandleRequestSlot(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var meta core.UploadMetadata
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid upload metadata")
			return
		}
		slot, err := svc.RequestUploadSlot(r.Context(), meta)
		if err != nil {
			renderServiceError(w, r, err, "Failed to reserve upload slot")
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, slot)
	}
}

// HandleTransfer stores the body of a token-authorised PUT. The token's subject
// must name the object key in the path.
func HandleTransfer(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.Claims(r)
		if !ok {
			renderError(w, r, http.StatusUnauthorized, "Transfer claims not found")
			return
		}
		objectKey, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid object key")
			return
		}
		if claims.Subject != objectKey {
			logrus.WithFields(logrus.Fields{
				"object_key": objectKey,
				"subject":    claims.Subject,
			}).Warn("Transfer token does not match object key")
			renderError(w, r, http.StatusForbidden, "Token is not valid for this object")
			return
		}
		defer r.Body.Close()
		if err := svc.Transfer(r.Context(), objectKey, r.Body); err != nil {
			renderServiceError(w, r, err, "Failed to store upload")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleConfirm(svc *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c core.UploadConfirmation
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			renderError(w, r, http.StatusBadRequest, "Invalid confirmation")
			return
		}
		confirmed, err := svc.ConfirmUpload(r.Context(), c)
		if err != nil {
			renderServiceError(w, r, err, "Failed to confirm upload")
			return
		}
		render.JSON(w, r, confirmed)
	}
}

// Routes mounts the file service under /api/v1.
func Routes(r chi.Router, svc *files.Service) {
	r.Get("/owners/{ownerId}/images", HandleListImages(svc))
	r.Route("/images/{id}", func(r chi.Router) {
		r.Get("/preview", HandlePreview(svc))
		r.Get("/thumbnail", HandleThumbnail(svc))
		r.Get("/original", HandleOriginal(svc))
	})
	r.Post("/uploads", HandleRequestSlot(svc))
	r.Post("/uploads/confirm", HandleConfirm(svc))
	r.With(middleware.TransferToken(svc.Signer())).Put("/transfer/*", HandleTransfer(svc))
}
