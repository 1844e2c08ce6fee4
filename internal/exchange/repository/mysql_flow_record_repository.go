package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/credx/internal/database"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// MySQLFlowRecordRepository implements the flow log for MySQL.
// Uses BINARY(16) for UUID storage with transaction support via database.GetTx().
type MySQLFlowRecordRepository struct {
	db *sql.DB
}

// AppendRecord inserts one flow transition. Records are never updated.
func (m *MySQLFlowRecordRepository) AppendRecord(ctx context.Context, record *exchangeDomain.FlowRecord) error {
	querier := database.GetTx(ctx, m.db)

	id, err := record.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal flow record id")
	}

	query := `INSERT INTO flow_records (` + flowRecordColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		record.FlowID,
		record.ThreadID,
		record.Protocol,
		string(record.Operation),
		record.MessageID,
		string(record.State),
		record.From,
		record.To,
		record.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to append flow record")
	}

	return nil
}

// QueryByParticipant returns a page of the records sent or received by participant, oldest first.
func (m *MySQLFlowRecordRepository) QueryByParticipant(
	ctx context.Context,
	participant string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	query := `SELECT ` + flowRecordColumns + `
			  FROM flow_records
			  WHERE sender = ? OR recipient = ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	return m.query(ctx, query, participant, participant, limit, offset)
}

// QueryByThread returns a page of the records of threadID, oldest first.
func (m *MySQLFlowRecordRepository) QueryByThread(
	ctx context.Context,
	threadID string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	query := `SELECT ` + flowRecordColumns + `
			  FROM flow_records
			  WHERE thread_id = ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	return m.query(ctx, query, threadID, limit, offset)
}

func (m *MySQLFlowRecordRepository) query(
	ctx context.Context,
	query string,
	args ...any,
) ([]*exchangeDomain.FlowRecord, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to query flow records")
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*exchangeDomain.FlowRecord, 0)
	for rows.Next() {
		var record exchangeDomain.FlowRecord
		var idBinary []byte
		var operation, state string

		err := rows.Scan(
			&idBinary,
			&record.FlowID,
			&record.ThreadID,
			&record.Protocol,
			&operation,
			&record.MessageID,
			&state,
			&record.From,
			&record.To,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan flow record")
		}

		// UUIDs are stored as BINARY(16)
		if err := record.ID.UnmarshalBinary(idBinary); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal flow record id")
		}

		record.Operation = exchangeDomain.Operation(operation)
		record.State = exchangeDomain.FlowState(state)
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate flow records")
	}

	return records, nil
}

// NewMySQLFlowRecordRepository creates a new MySQL flow log.
func NewMySQLFlowRecordRepository(db *sql.DB) *MySQLFlowRecordRepository {
	return &MySQLFlowRecordRepository{db: db}
}
