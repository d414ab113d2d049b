package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	var confidence, simulated, phoneHash any
	if rec.Confidence != nil {
		confidence = *rec.Confidence
	}
	if rec.Simulated != nil {
		simulated = boolInt(*rec.Simulated)
	}
	if len(rec.PhoneHash) == 32 {
		phoneHash = rec.PhoneHash
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  event_id, request_id, module_id, action, category, phone_hash,
  granted, reason, confidence, simulated, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, nullString(rec.RequestID), nullString(rec.ModuleID), rec.Action,
			nullString(string(rec.Category)), phoneHash, boolInt(rec.Granted),
			nullString(rec.Reason), confidence, simulated, toMs(rec.DecidedAt),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// ListEvents returns up to limit events, newest first. limit <= 0 means all.
func (s *AccessEventStore) ListEvents(ctx context.Context, limit int) ([]store.AccessEventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, request_id, module_id, action, category, phone_hash,
       granted, reason, confidence, simulated, decided_at_ms
FROM access_events
ORDER BY decided_at_ms DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListEvents query: %w", err)
	}
	defer rows.Close()

	var out []store.AccessEventRecord
	for rows.Next() {
		var (
			rec                              store.AccessEventRecord
			requestID, moduleID, cat, reason sql.NullString
			granted                          int
			confidence                       sql.NullFloat64
			simulated                        sql.NullInt64
			decidedMs                        int64
		)
		if err := rows.Scan(&rec.ID, &requestID, &moduleID, &rec.Action, &cat, &rec.PhoneHash,
			&granted, &reason, &confidence, &simulated, &decidedMs); err != nil {
			return nil, fmt.Errorf("ListEvents scan: %w", err)
		}
		rec.RequestID = requestID.String
		rec.ModuleID = moduleID.String
		rec.Category = types.Category(cat.String)
		rec.Reason = reason.String
		rec.Granted = granted == 1
		rec.DecidedAt = fromMs(decidedMs)
		if confidence.Valid {
			v := confidence.Float64
			rec.Confidence = &v
		}
		if simulated.Valid {
			v := simulated.Int64 == 1
			rec.Simulated = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
