package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"phoshare.org/internal/auth"
)

// Service holds the small policy layer above the gallery store: ownership
// checks, moderation rights, rating rules. Handlers stay thin.
type Service struct {
	store Store
}

// NewService constructs the gallery service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("gallery: store is required")
	}
	return &Service{store: store}, nil
}

// AddPhoto registers a photo owned by actor, with up to five normalized tags.
func (s *Service) AddPhoto(ctx context.Context, actor *auth.User, url, description string, tags []string) (*Photo, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	names := normalizeTags(tags)
	if len(names) > maxTagsPerPhoto {
		return nil, ErrTagLimit
	}

	photo := &Photo{
		OwnerID:     actor.ID,
		URL:         url,
		Description: strings.TrimSpace(description),
		Tags:        names,
	}
	if err := s.store.Photos(ctx).Create(ctx, photo); err != nil {
		return nil, err
	}
	if len(names) > 0 {
		tagIDs := make([]string, 0, len(names))
		for _, name := range names {
			tag, err := s.store.Tags(ctx).Ensure(ctx, name)
			if err != nil {
				return nil, err
			}
			tagIDs = append(tagIDs, tag.ID)
		}
		if err := s.store.Photos(ctx).SetTags(ctx, photo.ID, tagIDs); err != nil {
			return nil, err
		}
	}
	return photo, nil
}

// GetPhoto returns one photo by id.
func (s *Service) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	return s.store.Photos(ctx).Find(ctx, id)
}

// ListPhotos returns a page of photos, newest first.
func (s *Service) ListPhotos(ctx context.Context, limit, offset int) ([]*Photo, error) {
	return s.store.Photos(ctx).List(ctx, clampLimit(limit), max(offset, 0))
}

// ListUserPhotos returns a page of one owner's photos, newest first.
func (s *Service) ListUserPhotos(ctx context.Context, ownerID string, limit, offset int) ([]*Photo, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	return s.store.Photos(ctx).ListByOwner(ctx, ownerID, clampLimit(limit), max(offset, 0))
}

// UpdatePhotoDescription edits a photo's description. Only the owner or a
// moderator may edit.
func (s *Service) UpdatePhotoDescription(ctx context.Context, actor *auth.User, photoID, description string) (*Photo, error) {
	photo, err := s.store.Photos(ctx).Find(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if photo.OwnerID != actor.ID && !actor.Role.CanModerate() {
		return nil, ErrForbidden
	}
	if err := s.store.Photos(ctx).UpdateDescription(ctx, photoID, strings.TrimSpace(description)); err != nil {
		return nil, err
	}
	photo.Description = strings.TrimSpace(description)
	return photo, nil
}

// DeletePhoto removes a photo. Only the owner or a moderator may delete.
func (s *Service) DeletePhoto(ctx context.Context, actor *auth.User, photoID string) error {
	photo, err := s.store.Photos(ctx).Find(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.OwnerID != actor.ID && !actor.Role.CanModerate() {
		return ErrForbidden
	}
	return s.store.Photos(ctx).Delete(ctx, photoID)
}

// AddComment attaches a comment by actor to a photo.
func (s *Service) AddComment(ctx context.Context, actor *auth.User, photoID, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if _, err := s.store.Photos(ctx).Find(ctx, photoID); err != nil {
		return nil, err
	}
	comment := &Comment{
		PhotoID:  photoID,
		AuthorID: actor.ID,
		Text:     text,
	}
	if err := s.store.Comments(ctx).Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments returns a page of comments for a photo, oldest first.
func (s *Service) ListComments(ctx context.Context, photoID string, limit, offset int) ([]*Comment, error) {
	return s.store.Comments(ctx).ListByPhoto(ctx, photoID, clampLimit(limit), max(offset, 0))
}

// EditComment updates comment text. Authors edit their own; moderators may
// edit any.
func (s *Service) EditComment(ctx context.Context, actor *auth.User, commentID, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	comment, err := s.store.Comments(ctx).Find(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != actor.ID && !actor.Role.CanModerate() {
		return nil, ErrForbidden
	}
	if err := s.store.Comments(ctx).UpdateText(ctx, commentID, text); err != nil {
		return nil, err
	}
	comment.Text = text
	return comment, nil
}

// DeleteComment removes a comment, with the same permission rule as edit.
func (s *Service) DeleteComment(ctx context.Context, actor *auth.User, commentID string) error {
	comment, err := s.store.Comments(ctx).Find(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.ID && !actor.Role.CanModerate() {
		return ErrForbidden
	}
	return s.store.Comments(ctx).Delete(ctx, commentID)
}

// ListTags returns the shared tag catalog.
func (s *Service) ListTags(ctx context.Context) ([]*Tag, error) {
	return s.store.Tags(ctx).List(ctx)
}

// RatePhoto records actor's 1..5 star vote. Owners cannot rate their own
// photos and repeat votes are rejected.
func (s *Service) RatePhoto(ctx context.Context, actor *auth.User, photoID string, stars int) (*Rating, error) {
	if stars < 1 || stars > 5 {
		return nil, fmt.Errorf("%w: stars must be between 1 and 5", ErrInvalidInput)
	}
	photo, err := s.store.Photos(ctx).Find(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if photo.OwnerID == actor.ID {
		return nil, ErrOwnPhoto
	}
	if _, err := s.store.Ratings(ctx).FindByPhotoAndUser(ctx, photoID, actor.ID); err == nil {
		return nil, ErrAlreadyRated
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rating := &Rating{
		PhotoID: photoID,
		UserID:  actor.ID,
		Stars:   stars,
	}
	if err := s.store.Ratings(ctx).Create(ctx, rating); err != nil {
		return nil, err
	}
	return rating, nil
}

// PhotoRating returns the average star value and vote count for a photo.
func (s *Service) PhotoRating(ctx context.Context, photoID string) (float64, int, error) {
	if _, err := s.store.Photos(ctx).Find(ctx, photoID); err != nil {
		return 0, 0, err
	}
	return s.store.Ratings(ctx).Average(ctx, photoID)
}

// DeleteRating removes a vote. Only moderators may remove ratings.
func (s *Service) DeleteRating(ctx context.Context, actor *auth.User, ratingID string) error {
	if !actor.Role.CanModerate() {
		return ErrForbidden
	}
	if _, err := s.store.Ratings(ctx).Find(ctx, ratingID); err != nil {
		return err
	}
	return s.store.Ratings(ctx).Delete(ctx, ratingID)
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.ToLower(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
