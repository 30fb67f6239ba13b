package profile

import (
	"context"
	"database/sql"
	"errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the projection row for one user, or nil (not an error) when no
// row exists. Callers fall back to placeholder display values.
func (r *Repository) Get(ctx context.Context, id string) (*Profile, error) {
	p := &Profile{}
	query := `SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''),
	       COALESCE(username, ''), COALESCE(image_url, ''), COALESCE(email, '')
	FROM profiles WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Username, &p.ImageURL, &p.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// GetMany batch-fetches projection rows for an id set. Missing ids are simply
// absent from the result map.
func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]*Profile, error) {
	result := make(map[string]*Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''),
	       COALESCE(username, ''), COALESCE(image_url, ''), COALESCE(email, '')
	FROM profiles WHERE id = ANY($1::uuid[])`

	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p := &Profile{}
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Username, &p.ImageURL, &p.Email); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

// Exists reports whether a projection row is present for the id.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM profiles WHERE id = $1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ensure upserts the caller's own projection row. A missing row would break
// the participant foreign key, so conversation creation calls this first.
func (r *Repository) Ensure(ctx context.Context, id, username, email string) error {
	query := `INSERT INTO profiles (id, username, email) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, id, username, email)
	return err
}

// Search finds profiles by username or name fragment, capped at 10 to keep it
// fast.
func (r *Repository) Search(ctx context.Context, q string) ([]Profile, error) {
	query := `SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''),
	       COALESCE(username, ''), COALESCE(image_url, ''), COALESCE(email, '')
	FROM profiles
	WHERE username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1
	LIMIT 10`

	rows, err := r.db.QueryContext(ctx, query, "%"+q+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Username, &p.ImageURL, &p.Email); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
