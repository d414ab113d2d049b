package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

const requestColumns = `request_id, module_id, category, phone, visitor_name, user_id, status,
  otp_code, otp_subject, otp_attempts, otp_verified, face_verified, access_granted,
  matched_user_id, confidence, reason, expires_at_ms, access_time_ms,
  created_at_ms, updated_at_ms, version`

type AccessRequestStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessRequestStore(db *sql.DB, writer *dbpkg.Worker) *AccessRequestStore {
	return &AccessRequestStore{db: db, writer: writer}
}

// requestArgs lists rec's values in requestColumns order.
func requestArgs(rec store.AccessRequestRecord) []any {
	return []any{
		rec.ID, nullString(rec.ModuleID), nullString(string(rec.Category)), nullString(rec.Phone),
		nullString(rec.VisitorName), nullString(rec.UserID), string(rec.Status),
		nullString(rec.OTPCode), nullString(rec.OTPSubject), rec.OTPAttempts,
		boolInt(rec.OTPVerified), boolInt(rec.FaceVerified), boolInt(rec.AccessGranted),
		nullString(rec.MatchedUserID), rec.Confidence, nullString(rec.Reason),
		nullMs(rec.ExpiresAt), nullMsPtr(rec.AccessTime),
		toMs(rec.CreatedAt), toMs(rec.UpdatedAt), rec.Version,
	}
}

func (s *AccessRequestStore) CreateRequest(ctx context.Context, rec store.AccessRequestRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO request_ids(request_id, created_at_ms) VALUES (?, ?);
`, rec.ID, toMs(rec.CreatedAt))
		if err != nil {
			return fmt.Errorf("CreateRequest reserve id: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("CreateRequest %s: %w", rec.ID, store.ErrExists)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_requests(`+requestColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, requestArgs(rec)...); err != nil {
			return fmt.Errorf("CreateRequest insert: %w", err)
		}
		return nil
	})
}

func (s *AccessRequestStore) GetRequest(ctx context.Context, id string) (store.AccessRequestRecord, error) {
	rec, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests WHERE request_id = ?;`, id))
	if err != nil {
		return rec, fmt.Errorf("GetRequest: %w", err)
	}
	return rec, nil
}

// SwapRequest is a compare-and-set on (status, version). A miss is told
// apart from a stale read inside the same transaction.
func (s *AccessRequestStore) SwapRequest(ctx context.Context, prev, next store.AccessRequestRecord) error {
	next.ID = prev.ID
	next.Version = prev.Version + 1

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE access_requests SET
  module_id = ?, category = ?, phone = ?, visitor_name = ?, user_id = ?, status = ?,
  otp_code = ?, otp_subject = ?, otp_attempts = ?, otp_verified = ?, face_verified = ?,
  access_granted = ?, matched_user_id = ?, confidence = ?, reason = ?,
  expires_at_ms = ?, access_time_ms = ?, created_at_ms = ?, updated_at_ms = ?, version = ?
WHERE request_id = ? AND status = ? AND version = ?;
`, append(requestArgs(next)[1:], prev.ID, string(prev.Status), prev.Version)...)
		if err != nil {
			return fmt.Errorf("SwapRequest update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}

		var one int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM access_requests WHERE request_id = ?;`, prev.ID).Scan(&one)
		switch {
		case err == sql.ErrNoRows:
			return fmt.Errorf("SwapRequest %s: %w", prev.ID, store.ErrNotFound)
		case err != nil:
			return fmt.Errorf("SwapRequest lookup: %w", err)
		}
		return fmt.Errorf("SwapRequest %s: %w", prev.ID, store.ErrStale)
	})
}

func (s *AccessRequestStore) ListRequests(ctx context.Context, match func(store.AccessRequestRecord) bool) ([]store.AccessRequestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests ORDER BY created_at_ms, request_id;`)
	if err != nil {
		return nil, fmt.Errorf("ListRequests query: %w", err)
	}
	defer rows.Close()

	var out []store.AccessRequestRecord
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRequests: %w", err)
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

// PruneRequests deletes terminal requests last updated before cutoff. Their
// ids stay reserved in request_ids.
func (s *AccessRequestStore) PruneRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := types.TerminalStatuses()
	args := make([]any, 0, len(terminal)+1)
	args = append(args, toMs(cutoff))
	for _, st := range terminal {
		args = append(args, string(st))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(terminal)), ", ")

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_requests
WHERE updated_at_ms < ? AND status IN (`+placeholders+`);
`, args...)
		if err != nil {
			return fmt.Errorf("PruneRequests: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

func scanRequest(r rowScanner) (store.AccessRequestRecord, error) {
	var (
		rec                                        store.AccessRequestRecord
		moduleID, cat, phone, name, userID, status sql.NullString
		code, subject, matched, reason             sql.NullString
		otpVerified, faceVerified, granted         int
		expiresMs, accessMs                        sql.NullInt64
		createdMs, updatedMs                       int64
	)
	err := r.Scan(&rec.ID, &moduleID, &cat, &phone, &name, &userID, &status,
		&code, &subject, &rec.OTPAttempts, &otpVerified, &faceVerified, &granted,
		&matched, &rec.Confidence, &reason, &expiresMs, &accessMs,
		&createdMs, &updatedMs, &rec.Version)
	if err == sql.ErrNoRows {
		return store.AccessRequestRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.AccessRequestRecord{}, err
	}
	rec.ModuleID = moduleID.String
	rec.Category = types.Category(cat.String)
	rec.Phone = phone.String
	rec.VisitorName = name.String
	rec.UserID = userID.String
	rec.Status = types.RequestStatus(status.String)
	rec.OTPCode = code.String
	rec.OTPSubject = subject.String
	rec.OTPVerified = otpVerified == 1
	rec.FaceVerified = faceVerified == 1
	rec.AccessGranted = granted == 1
	rec.MatchedUserID = matched.String
	rec.Reason = reason.String
	rec.ExpiresAt = fromNullMs(expiresMs)
	rec.AccessTime = fromNullMsPtr(accessMs)
	rec.CreatedAt = fromMs(createdMs)
	rec.UpdatedAt = fromMs(updatedMs)
	return rec, nil
}
