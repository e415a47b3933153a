package gallery

import (
	"context"
	"database/sql"
	"errors"

	"phoshare.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Photos(context.Context) PhotoStore     { return &photoStore{db: s.db} }
func (s *PGStore) Comments(context.Context) CommentStore { return &commentStore{db: s.db} }
func (s *PGStore) Tags(context.Context) TagStore         { return &tagStore{db: s.db} }
func (s *PGStore) Ratings(context.Context) RatingStore   { return &ratingStore{db: s.db} }

// Photo store --------------------------------------------------------------
type photoStore struct{ db *sql.DB }

func (s *photoStore) Create(ctx context.Context, p *Photo) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into photos(id, owner_id, url, description) values($1,$2,$3,$4) returning created_at`,
		p.ID, p.OwnerID, p.URL, p.Description,
	).Scan(&p.CreatedAt)
}

func (s *photoStore) Find(ctx context.Context, id string) (*Photo, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, owner_id, url, description, created_at from photos where id=$1`, id)
	var p Photo
	if err := row.Scan(&p.ID, &p.OwnerID, &p.URL, &p.Description, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tags, err := s.tagsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Tags = tags
	return &p, nil
}

func (s *photoStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, owner_id, url, description, created_at from photos
		 where owner_id=$1 order by created_at desc limit $2 offset $3`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPhotos(rows)
}

func (s *photoStore) List(ctx context.Context, limit, offset int) ([]*Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, owner_id, url, description, created_at from photos
		 order by created_at desc limit $1 offset $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPhotos(rows)
}

func (s *photoStore) UpdateDescription(ctx context.Context, id, description string) error {
	res, err := s.db.ExecContext(ctx,
		`update photos set description=$2 where id=$1`, id, description)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *photoStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from photos where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *photoStore) SetTags(ctx context.Context, photoID string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from photo_tags where photo_id=$1`, photoID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into photo_tags(photo_id, tag_id) values($1,$2) on conflict do nothing`,
			photoID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *photoStore) tagsFor(ctx context.Context, photoID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select t.name from tags t join photo_tags pt on pt.tag_id=t.id
		 where pt.photo_id=$1 order by t.name`, photoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func collectPhotos(rows *sql.Rows) ([]*Photo, error) {
	defer rows.Close()
	var res []*Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.URL, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &p)
	}
	return res, rows.Err()
}

// Comment store ------------------------------------------------------------
type commentStore struct{ db *sql.DB }

func (s *commentStore) Create(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into comments(id, photo_id, author_id, text) values($1,$2,$3,$4)
		 returning created_at, updated_at`,
		c.ID, c.PhotoID, c.AuthorID, c.Text,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (s *commentStore) Find(ctx context.Context, id string) (*Comment, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, photo_id, author_id, text, created_at, updated_at from comments where id=$1`, id)
	var c Comment
	if err := row.Scan(&c.ID, &c.PhotoID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *commentStore) ListByPhoto(ctx context.Context, photoID string, limit, offset int) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, photo_id, author_id, text, created_at, updated_at from comments
		 where photo_id=$1 order by created_at asc limit $2 offset $3`, photoID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PhotoID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

func (s *commentStore) UpdateText(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx,
		`update comments set text=$2, updated_at=now() where id=$1`, id, text)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *commentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from comments where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Tag store ----------------------------------------------------------------
type tagStore struct{ db *sql.DB }

func (s *tagStore) Ensure(ctx context.Context, name string) (*Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx,
		`insert into tags(id, name) values($1,$2)
		 on conflict (name) do update set name=excluded.name
		 returning id, name`, ids.New(), name).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *tagStore) List(ctx context.Context) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from tags order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		res = append(res, &tag)
	}
	return res, rows.Err()
}

// Rating store -------------------------------------------------------------
type ratingStore struct{ db *sql.DB }

func (s *ratingStore) Create(ctx context.Context, r *Rating) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into ratings(id, photo_id, user_id, stars) values($1,$2,$3,$4) returning created_at`,
		r.ID, r.PhotoID, r.UserID, r.Stars,
	).Scan(&r.CreatedAt)
}

func (s *ratingStore) Find(ctx context.Context, id string) (*Rating, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, photo_id, user_id, stars, created_at from ratings where id=$1`, id)
	return scanRating(row)
}

func (s *ratingStore) FindByPhotoAndUser(ctx context.Context, photoID, userID string) (*Rating, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, photo_id, user_id, stars, created_at from ratings where photo_id=$1 and user_id=$2`,
		photoID, userID)
	return scanRating(row)
}

func (s *ratingStore) Average(ctx context.Context, photoID string) (float64, int, error) {
	var (
		avg   sql.NullFloat64
		count int
	)
	err := s.db.QueryRowContext(ctx,
		`select avg(stars), count(*) from ratings where photo_id=$1`, photoID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	return avg.Float64, count, nil
}

func (s *ratingStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from ratings where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRating(row *sql.Row) (*Rating, error) {
	var r Rating
	if err := row.Scan(&r.ID, &r.PhotoID, &r.UserID, &r.Stars, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}
