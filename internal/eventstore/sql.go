package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/domain"
)

// Dialect abstracts the small surface where Postgres (lib/pq) and SQLite
// (modernc.org/sqlite) diverge: placeholder syntax and table DDL.
type Dialect int

const (
	// DialectPostgres targets github.com/lib/pq.
	DialectPostgres Dialect = iota
	// DialectSQLite targets modernc.org/sqlite.
	DialectSQLite
)

// SQLStore is a Store backed by a SQL database, selected by configuration
// between a production Postgres deployment and an embedded SQLite file for
// local/single-binary use. Both share this implementation; only the
// placeholder style and the Migrate DDL differ.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an already-opened *sql.DB. Callers choose the driver
// (lib/pq's "postgres" or modernc.org/sqlite's "sqlite") when opening db.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the events table if it does not already exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case DialectPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			mission_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			event_id TEXT NOT NULL,
			tool_call_id TEXT,
			tool_name TEXT,
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			UNIQUE(mission_id, sequence)
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			event_id TEXT NOT NULL,
			tool_call_id TEXT,
			tool_name TEXT,
			content TEXT NOT NULL,
			metadata_json TEXT NOT NULL,
			UNIQUE(mission_id, sequence)
		)`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "migrate events table", err)
	}
	return nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// RegisterMission is a no-op for SQL backends: validity is enforced by the
// caller (Mission Registry); this store only requires a non-empty mission id.
func (s *SQLStore) RegisterMission(ctx context.Context, missionID string) error {
	return nil
}

// Append implements Store using a serializable transaction per mission to
// compute the next contiguous sequence number.
func (s *SQLStore) Append(ctx context.Context, missionID string, draft domain.EventDraft) (domain.StoredEvent, error) {
	if missionID == "" {
		return domain.StoredEvent{}, domain.NewError(domain.ErrMissionUnknown, "empty mission id")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.StoredEvent{}, domain.WrapError(domain.ErrStorage, "begin append tx", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(sequence) FROM events WHERE mission_id = %s", s.placeholder(1))
	if err := tx.QueryRowContext(ctx, query, missionID).Scan(&last); err != nil {
		return domain.StoredEvent{}, domain.WrapError(domain.ErrStorage, "read last sequence", err)
	}
	seq := int64(1)
	if last.Valid {
		seq = last.Int64 + 1
	}

	eventID := draft.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	metaJSON, err := json.Marshal(draft.Metadata)
	if err != nil {
		return domain.StoredEvent{}, domain.WrapError(domain.ErrStorage, "marshal metadata", err)
	}
	ts := time.Now().UTC()

	insert := fmt.Sprintf(
		"INSERT INTO events (mission_id, sequence, event_type, timestamp, event_id, tool_call_id, tool_name, content, metadata_json) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9),
	)
	result, err := tx.ExecContext(ctx, insert, missionID, seq, string(draft.EventType), ts, eventID,
		draft.ToolCallID, draft.ToolName, draft.Content, string(metaJSON))
	if err != nil {
		return domain.StoredEvent{}, domain.WrapError(domain.ErrStorage, "insert event", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		id = 0
	}

	if err := tx.Commit(); err != nil {
		return domain.StoredEvent{}, domain.WrapError(domain.ErrStorage, "commit append tx", err)
	}

	return domain.StoredEvent{
		ID:         id,
		MissionID:  missionID,
		Sequence:   seq,
		Timestamp:  ts,
		EventType:  draft.EventType,
		EventID:    eventID,
		ToolCallID: draft.ToolCallID,
		ToolName:   draft.ToolName,
		Content:    draft.Content,
		Metadata:   draft.Metadata,
	}, nil
}

// ReadRange implements Store.
func (s *SQLStore) ReadRange(ctx context.Context, missionID string, opts ReadRangeOptions) ([]domain.StoredEvent, error) {
	opts = opts.Normalize()

	query := "SELECT id, sequence, event_type, timestamp, event_id, tool_call_id, tool_name, content, metadata_json FROM events WHERE mission_id = " + s.placeholder(1)
	args := []any{missionID}
	argN := 2

	if len(opts.Types) > 0 {
		query += " AND event_type IN ("
		for i, t := range opts.Types {
			if i > 0 {
				query += ", "
			}
			query += s.placeholder(argN)
			args = append(args, string(t))
			argN++
		}
		query += ")"
	}

	query += fmt.Sprintf(" ORDER BY sequence ASC, id ASC LIMIT %s OFFSET %s", s.placeholder(argN), s.placeholder(argN+1))
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "read range", err)
	}
	defer rows.Close()

	var out []domain.StoredEvent
	for rows.Next() {
		var (
			e            domain.StoredEvent
			eventType    string
			toolCallID   sql.NullString
			toolName     sql.NullString
			metaJSON     string
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &eventType, &e.Timestamp, &e.EventID,
			&toolCallID, &toolName, &e.Content, &metaJSON); err != nil {
			return nil, domain.WrapError(domain.ErrStorage, "scan event row", err)
		}
		e.MissionID = missionID
		e.EventType = domain.EventType(eventType)
		e.ToolCallID = toolCallID.String
		e.ToolName = toolName.String
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
				return nil, domain.WrapError(domain.ErrStorage, "unmarshal metadata", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "iterate event rows", err)
	}
	return out, nil
}

// LastSequence implements Store.
func (s *SQLStore) LastSequence(ctx context.Context, missionID string) (int64, error) {
	var last sql.NullInt64
	query := "SELECT MAX(sequence) FROM events WHERE mission_id = " + s.placeholder(1)
	if err := s.db.QueryRowContext(ctx, query, missionID).Scan(&last); err != nil {
		return 0, domain.WrapError(domain.ErrStorage, "read last sequence", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return last.Int64, nil
}
