package gallery

import (
	"errors"
	"time"
)

// Photo references an externally stored image. URL is opaque to this
// service; byte storage lives elsewhere.
type Photo struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Comment is a user remark attached to a photo.
type Comment struct {
	ID        string    `json:"id"`
	PhotoID   string    `json:"photo_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is a shared label; names are unique and lower-cased.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Rating is one user's 1..5 star vote on a photo. A user rates a given
// photo at most once and never their own.
type Rating struct {
	ID        string    `json:"id"`
	PhotoID   string    `json:"photo_id"`
	UserID    string    `json:"user_id"`
	Stars     int       `json:"stars"`
	CreatedAt time.Time `json:"created_at"`
}

const maxTagsPerPhoto = 5

var (
	ErrNotFound     = errors.New("gallery: not found")
	ErrForbidden    = errors.New("gallery: forbidden")
	ErrInvalidInput = errors.New("gallery: invalid input")
	ErrOwnPhoto     = errors.New("gallery: cannot rate own photo")
	ErrAlreadyRated = errors.New("gallery: photo already rated by user")
	ErrTagLimit     = errors.New("gallery: too many tags")
)
