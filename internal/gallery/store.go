package gallery

import "context"

// Store describes persistence for gallery content. Implementations are
// row-granular; no cross-row transactions are required by the service layer
// except tag attachment, which stores handle internally.
type Store interface {
	Photos(ctx context.Context) PhotoStore
	Comments(ctx context.Context) CommentStore
	Tags(ctx context.Context) TagStore
	Ratings(ctx context.Context) RatingStore
}

// PhotoStore manages photo rows.
type PhotoStore interface {
	Create(ctx context.Context, p *Photo) error
	Find(ctx context.Context, id string) (*Photo, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Photo, error)
	List(ctx context.Context, limit, offset int) ([]*Photo, error)
	UpdateDescription(ctx context.Context, id, description string) error
	Delete(ctx context.Context, id string) error
	SetTags(ctx context.Context, photoID string, tagIDs []string) error
}

// CommentStore manages comment rows.
type CommentStore interface {
	Create(ctx context.Context, c *Comment) error
	Find(ctx context.Context, id string) (*Comment, error)
	ListByPhoto(ctx context.Context, photoID string, limit, offset int) ([]*Comment, error)
	UpdateText(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
}

// TagStore manages the shared tag catalog.
type TagStore interface {
	// Ensure returns the tag with the given name, creating it if absent.
	Ensure(ctx context.Context, name string) (*Tag, error)
	List(ctx context.Context) ([]*Tag, error)
}

// RatingStore manages rating rows.
type RatingStore interface {
	Create(ctx context.Context, r *Rating) error
	Find(ctx context.Context, id string) (*Rating, error)
	FindByPhotoAndUser(ctx context.Context, photoID, userID string) (*Rating, error)
	Average(ctx context.Context, photoID string) (float64, int, error)
	Delete(ctx context.Context, id string) error
}
