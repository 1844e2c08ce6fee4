// Package repository persists the exchange flow log.
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/credx/internal/database"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

const flowRecordColumns = `id, flow_id, thread_id, protocol, operation, message_id, state, sender, recipient, created_at`

// PostgreSQLFlowRecordRepository implements the flow log for PostgreSQL.
// Uses native UUID types with transaction support via database.GetTx().
type PostgreSQLFlowRecordRepository struct {
	db *sql.DB
}

// AppendRecord inserts one flow transition. Records are never updated.
func (p *PostgreSQLFlowRecordRepository) AppendRecord(ctx context.Context, record *exchangeDomain.FlowRecord) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO flow_records (` + flowRecordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
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
func (p *PostgreSQLFlowRecordRepository) QueryByParticipant(
	ctx context.Context,
	participant string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	query := `SELECT ` + flowRecordColumns + `
			  FROM flow_records
			  WHERE sender = $1 OR recipient = $1
			  ORDER BY created_at ASC, id ASC
			  LIMIT $2 OFFSET $3`

	return p.query(ctx, query, participant, limit, offset)
}

// QueryByThread returns a page of the records of threadID, oldest first.
func (p *PostgreSQLFlowRecordRepository) QueryByThread(
	ctx context.Context,
	threadID string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	query := `SELECT ` + flowRecordColumns + `
			  FROM flow_records
			  WHERE thread_id = $1
			  ORDER BY created_at ASC, id ASC
			  LIMIT $2 OFFSET $3`

	return p.query(ctx, query, threadID, limit, offset)
}

func (p *PostgreSQLFlowRecordRepository) query(
	ctx context.Context,
	query string,
	args ...any,
) ([]*exchangeDomain.FlowRecord, error) {
	querier := database.GetTx(ctx, p.db)

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
		var operation, state string

		err := rows.Scan(
			&record.ID,
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

		record.Operation = exchangeDomain.Operation(operation)
		record.State = exchangeDomain.FlowState(state)
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate flow records")
	}

	return records, nil
}

// NewPostgreSQLFlowRecordRepository creates a new PostgreSQL flow log.
func NewPostgreSQLFlowRecordRepository(db *sql.DB) *PostgreSQLFlowRecordRepository {
	return &PostgreSQLFlowRecordRepository{db: db}
}
