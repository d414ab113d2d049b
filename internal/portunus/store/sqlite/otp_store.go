package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
)

type OTPStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewOTPStore(db *sql.DB, writer *dbpkg.Worker) *OTPStore {
	return &OTPStore{db: db, writer: writer}
}

// UpdateOTP reads, mutates and writes the record inside one writer
// transaction, so no other write can interleave.
func (s *OTPStore) UpdateOTP(ctx context.Context, key string, fn store.OTPUpdateFunc) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := scanOTP(tx.QueryRowContext(ctx, `
SELECT subject_key, code_hash, created_at_ms, expires_at_ms, used, used_at_ms
FROM otp_records WHERE subject_key = ?;
`, key))
		found := err == nil
		switch {
		case err == store.ErrNotFound:
			rec = store.OTPRecord{SubjectKey: key}
		case err != nil:
			return fmt.Errorf("UpdateOTP read: %w", err)
		}

		if err := fn(&rec, found); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO otp_records(subject_key, code_hash, created_at_ms, expires_at_ms, used, used_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(subject_key) DO UPDATE SET
  code_hash     = excluded.code_hash,
  created_at_ms = excluded.created_at_ms,
  expires_at_ms = excluded.expires_at_ms,
  used          = excluded.used,
  used_at_ms    = excluded.used_at_ms;
`, key, rec.CodeHash, toMs(rec.CreatedAt), toMs(rec.ExpiresAt), boolInt(rec.Used), nullMsPtr(rec.UsedAt)); err != nil {
			return fmt.Errorf("UpdateOTP write: %w", err)
		}
		return nil
	})
}

func (s *OTPStore) GetOTP(ctx context.Context, key string) (store.OTPRecord, error) {
	rec, err := scanOTP(s.db.QueryRowContext(ctx, `
SELECT subject_key, code_hash, created_at_ms, expires_at_ms, used, used_at_ms
FROM otp_records WHERE subject_key = ?;
`, key))
	if err != nil {
		return rec, fmt.Errorf("GetOTP: %w", err)
	}
	return rec, nil
}

func (s *OTPStore) PruneOTPs(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM otp_records WHERE expires_at_ms < ?;`, toMs(cutoff))
		if err != nil {
			return fmt.Errorf("PruneOTPs: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func scanOTP(r rowScanner) (store.OTPRecord, error) {
	var (
		rec                  store.OTPRecord
		createdMs, expiresMs int64
		used                 int
		usedAt               sql.NullInt64
	)
	err := r.Scan(&rec.SubjectKey, &rec.CodeHash, &createdMs, &expiresMs, &used, &usedAt)
	if err == sql.ErrNoRows {
		return store.OTPRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.OTPRecord{}, err
	}
	rec.CreatedAt = fromMs(createdMs)
	rec.ExpiresAt = fromMs(expiresMs)
	rec.Used = used == 1
	rec.UsedAt = fromNullMsPtr(usedAt)
	return rec, nil
}
