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

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// UpsertHeartbeat appends the heartbeat and refreshes the module's
// last-seen snapshot in one transaction.
func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, moduleID string, rec store.HeartbeatRecord) error {
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := toMs(rec.ReceivedAt)

	req := rec.Request
	fw := strings.TrimSpace(req.FirmwareVersion)
	ip := strings.TrimSpace(req.IP)

	var rssi any
	if req.RSSIDbm != nil {
		rssi = *req.RSSIDbm
	}
	var uptimeMs any
	if req.UptimeSeconds != 0 {
		uptimeMs = int64(req.UptimeSeconds) * 1000
	}
	var seq any
	if req.Sequence != 0 {
		seq = req.Sequence
	}
	var freeHeap any
	if req.FreeHeapBytes != 0 {
		freeHeap = req.FreeHeapBytes
	}
	var doorClosed any
	if req.DoorClosed != nil {
		doorClosed = boolInt(*req.DoorClosed)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureModule(ctx, tx, moduleID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO module_heartbeats(
  module_id, received_at_ms, seq, uptime_ms, fw_version, wifi_rssi, ip, free_heap_bytes, door_closed
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, moduleID, recvMs, seq, uptimeMs, fw, rssi, ip, freeHeap, doorClosed); err != nil {
			return fmt.Errorf("UpsertHeartbeat insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE modules
SET last_seen_at_ms = ?,
    last_ip = ?,
    last_fw_version = ?,
    last_wifi_rssi = ?,
    updated_at_ms = ?
WHERE module_id = ?;
`, recvMs, ip, fw, rssi, recvMs, moduleID); err != nil {
			return fmt.Errorf("UpsertHeartbeat update module snapshot: %w", err)
		}
		return nil
	})
}

func (s *HeartbeatStore) LatestHeartbeat(ctx context.Context, moduleID string) (store.HeartbeatRecord, error) {
	var (
		recvMs                                    int64
		seq, uptimeMs, rssi, freeHeap, doorClosed sql.NullInt64
		fw, ip                                    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT received_at_ms, seq, uptime_ms, fw_version, wifi_rssi, ip, free_heap_bytes, door_closed
FROM module_heartbeats
WHERE module_id = ?
ORDER BY received_at_ms DESC, id DESC
LIMIT 1;
`, strings.TrimSpace(moduleID)).Scan(&recvMs, &seq, &uptimeMs, &fw, &rssi, &ip, &freeHeap, &doorClosed)
	if err == sql.ErrNoRows {
		return store.HeartbeatRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.HeartbeatRecord{}, fmt.Errorf("LatestHeartbeat: %w", err)
	}

	req := types.HeartbeatRequest{
		ModuleID:        moduleID,
		FirmwareVersion: fw.String,
		IP:              ip.String,
		UptimeSeconds:   uint64(uptimeMs.Int64 / 1000),
		Sequence:        uint32(seq.Int64),
		FreeHeapBytes:   uint32(freeHeap.Int64),
	}
	if rssi.Valid {
		v := int(rssi.Int64)
		req.RSSIDbm = &v
	}
	if doorClosed.Valid {
		v := doorClosed.Int64 == 1
		req.DoorClosed = &v
	}
	return store.HeartbeatRecord{ReceivedAt: fromMs(recvMs), Request: req}, nil
}

// PruneOlderThan deletes heartbeat rows received before cutoff and reports
// how many went.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := toMs(cutoff)

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM module_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
