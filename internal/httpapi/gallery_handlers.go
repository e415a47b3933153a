package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"phoshare.org/internal/audit"
	"phoshare.org/internal/gallery"
)

type createPhotoRequest struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type updatePhotoRequest struct {
	Description string `json:"description"`
}

type createCommentRequest struct {
	Text string `json:"text"`
}

type updateCommentRequest struct {
	Text string `json:"text"`
}

type rateRequest struct {
	Stars int `json:"stars"`
}

type ratingSummaryResponse struct {
	PhotoID string  `json:"photo_id"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func (a *API) handlePhotosCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPhotos(w, r)
	case http.MethodPost:
		a.createPhoto(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePhotoResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/photos/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/comments"); ok {
		switch r.Method {
		case http.MethodGet:
			a.listComments(w, r, id)
		case http.MethodPost:
			a.createComment(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/rating"); ok {
		switch r.Method {
		case http.MethodGet:
			a.getRating(w, r, id)
		case http.MethodPost:
			a.ratePhoto(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getPhoto(w, r, path)
	case http.MethodPut:
		a.updatePhoto(w, r, path)
	case http.MethodDelete:
		a.deletePhoto(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleCommentResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/comments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		a.updateComment(w, r, id)
	case http.MethodDelete:
		a.deleteComment(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRatingResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/ratings/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodDelete:
		a.deleteRating(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodDelete)
	}
}

func (a *API) handleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tags, err := a.gallery.ListTags(r.Context())
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	if tags == nil {
		tags = []*gallery.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

func (a *API) listPhotos(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer between 1 and 100")
		return
	}
	offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	var photos []*gallery.Photo
	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		photos, err = a.gallery.ListUserPhotos(r.Context(), owner, limit, offset)
	} else {
		photos, err = a.gallery.ListPhotos(r.Context(), limit, offset)
	}
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	if photos == nil {
		photos = []*gallery.Photo{}
	}
	writeJSON(w, http.StatusOK, photos)
}

func (a *API) createPhoto(w http.ResponseWriter, r *http.Request) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	var req createPhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	photo, err := a.gallery.AddPhoto(r.Context(), user, req.URL, req.Description, req.Tags)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "gallery.photo.create", map[string]any{
		"photo_id": photo.ID,
		"owner_id": photo.OwnerID,
	})
	w.Header().Set("Location", "/v1/photos/"+photo.ID)
	writeJSON(w, http.StatusCreated, photo)
}

func (a *API) getPhoto(w http.ResponseWriter, r *http.Request, id string) {
	photo, err := a.gallery.GetPhoto(r.Context(), id)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (a *API) updatePhoto(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	var req updatePhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	photo, err := a.gallery.UpdatePhotoDescription(r.Context(), user, id, req.Description)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (a *API) deletePhoto(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.gallery.DeletePhoto(r.Context(), user, id); err != nil {
		handleGalleryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "gallery.photo.delete", map[string]any{
		"photo_id": id,
		"actor_id": user.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request, photoID string) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer between 1 and 200")
		return
	}
	offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	comments, err := a.gallery.ListComments(r.Context(), photoID, limit, offset)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	if comments == nil {
		comments = []*gallery.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request, photoID string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	comment, err := a.gallery.AddComment(r.Context(), user, photoID, req.Text)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (a *API) updateComment(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	comment, err := a.gallery.EditComment(r.Context(), user, id, req.Text)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (a *API) deleteComment(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.gallery.DeleteComment(r.Context(), user, id); err != nil {
		handleGalleryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getRating(w http.ResponseWriter, r *http.Request, photoID string) {
	avg, count, err := a.gallery.PhotoRating(r.Context(), photoID)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingSummaryResponse{
		PhotoID: photoID,
		Average: avg,
		Count:   count,
	})
}

func (a *API) ratePhoto(w http.ResponseWriter, r *http.Request, photoID string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rating, err := a.gallery.RatePhoto(r.Context(), user, photoID, req.Stars)
	if err != nil {
		handleGalleryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

func (a *API) deleteRating(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := principal(w, r)
	if !ok {
		return
	}
	if err := a.gallery.DeleteRating(r.Context(), user, id); err != nil {
		handleGalleryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "gallery.rating.delete", map[string]any{
		"rating_id": id,
		"actor_id":  user.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleGalleryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gallery.ErrInvalidInput), errors.Is(err, gallery.ErrTagLimit):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, gallery.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, gallery.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, gallery.ErrOwnPhoto), errors.Is(err, gallery.ErrAlreadyRated):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
