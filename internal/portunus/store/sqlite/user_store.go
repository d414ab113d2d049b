package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

const userColumns = `user_id, name, phone, category, face_profile_id, is_admin, created_at_ms, updated_at_ms`

type UserStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewUserStore(db *sql.DB, writer *dbpkg.Worker) *UserStore {
	return &UserStore{db: db, writer: writer}
}

func (s *UserStore) GetUser(ctx context.Context, id string) (store.UserRecord, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?;`, id))
	if err != nil {
		return u, fmt.Errorf("GetUser: %w", err)
	}
	return u, nil
}

func (s *UserStore) FindUserByPhone(ctx context.Context, phone string) (store.UserRecord, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return store.UserRecord{}, store.ErrNotFound
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = ?;`, phone))
	if err != nil {
		return u, fmt.Errorf("FindUserByPhone: %w", err)
	}
	return u, nil
}

func (s *UserStore) PutUser(ctx context.Context, rec store.UserRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id FROM users WHERE phone = ? AND user_id <> ?;`, rec.Phone, rec.ID,
		).Scan(&owner)
		switch {
		case err == nil:
			return fmt.Errorf("PutUser phone: %w", store.ErrExists)
		case err != sql.ErrNoRows:
			return fmt.Errorf("PutUser phone check: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  name            = excluded.name,
  phone           = excluded.phone,
  category        = excluded.category,
  face_profile_id = excluded.face_profile_id,
  is_admin        = excluded.is_admin,
  updated_at_ms   = excluded.updated_at_ms;
`,
			rec.ID, rec.Name, rec.Phone, string(rec.Category), nullString(rec.FaceProfileRef),
			boolInt(rec.IsAdmin), toMs(rec.CreatedAt), toMs(rec.UpdatedAt),
		); err != nil {
			return fmt.Errorf("PutUser upsert: %w", err)
		}
		return nil
	})
}

func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteUser: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("DeleteUser %s: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (s *UserStore) ListUsers(ctx context.Context, match func(store.UserRecord) bool) ([]store.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id;`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers query: %w", err)
	}
	defer rows.Close()

	var out []store.UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUsers: %w", err)
		}
		if match == nil || match(u) {
			out = append(out, u)
		}
	}
	return out, rows.Err()
}

func scanUser(r rowScanner) (store.UserRecord, error) {
	var (
		u                  store.UserRecord
		cat                string
		faceRef            sql.NullString
		admin              int
		createdMs, updated int64
	)
	err := r.Scan(&u.ID, &u.Name, &u.Phone, &cat, &faceRef, &admin, &createdMs, &updated)
	if err == sql.ErrNoRows {
		return store.UserRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserRecord{}, err
	}
	u.Category = types.Category(cat)
	u.FaceProfileRef = faceRef.String
	u.IsAdmin = admin == 1
	u.CreatedAt = fromMs(createdMs)
	u.UpdatedAt = fromMs(updated)
	return u, nil
}
