package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/execution"
	"github.com/Strob0t/RuleForge/internal/port/executionstore"
)

// ExecutionStore implements executionstore.Store using PostgreSQL
// (append-only). Records carry their id from the dispatch pipeline; the
// store only assigns the sequence number used for cursor pagination.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given
// connection pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Append inserts a new record into the execution_records table.
func (s *ExecutionStore) Append(ctx context.Context, rec *execution.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO execution_records (id, policy_id, policy_name, trigger_name, event_id, status, gate, condition_met, value, error, elapsed_ns, dry_run, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.PolicyID, rec.PolicyName, rec.TriggerName, rec.EventID,
		string(rec.Status), string(rec.Gate), rec.ConditionMet, rec.Value,
		rec.Error, int64(rec.Elapsed), rec.DryRun, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	return nil
}

// recordColumns is the SELECT column list for execution_records queries.
const recordColumns = `seq, id, policy_id, policy_name, trigger_name, event_id, status, gate, condition_met, value, error, elapsed_ns, dry_run, created_at`

// scanRecord scans a row into a Record and returns the sequence number
// backing the pagination cursor.
func scanRecord(scanner scannable, rec *execution.Record) (int64, error) {
	var seq, elapsedNS int64
	err := scanner.Scan(
		&seq, &rec.ID, &rec.PolicyID, &rec.PolicyName, &rec.TriggerName, &rec.EventID,
		&rec.Status, &rec.Gate, &rec.ConditionMet, &rec.Value, &rec.Error,
		&elapsedNS, &rec.DryRun, &rec.CreatedAt,
	)
	rec.Elapsed = time.Duration(elapsedNS)
	return seq, err
}

// Get returns the record with the given id.
func (s *ExecutionStore) Get(ctx context.Context, id string) (*execution.Record, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM execution_records WHERE id = $1`, recordColumns), id)

	var rec execution.Record
	if _, err := scanRecord(row, &rec); err != nil {
		return nil, notFoundWrap(err, "get execution record %s", id)
	}
	return &rec, nil
}

// ListRecords returns a cursor-paginated page of records, newest first,
// with optional filtering.
func (s *ExecutionStore) ListRecords(ctx context.Context, filter executionstore.Filter, cursor string, limit int) (*executionstore.Page, error) {
	if limit <= 0 {
		limit = 50
	}

	// Build dynamic WHERE clause.
	var args []any
	var conditions []string
	argIdx := 1

	if filter.PolicyID != "" {
		conditions = append(conditions, fmt.Sprintf("policy_id = $%d", argIdx))
		args = append(args, filter.PolicyID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, statuses)
		argIdx++
	}
	if filter.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIdx))
		args = append(args, *filter.After)
		argIdx++
	}
	if filter.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *filter.Before)
		argIdx++
	}
	if cursor != "" {
		seq, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse cursor %q: %w", cursor, domain.ErrInvalid)
		}
		conditions = append(conditions, fmt.Sprintf("seq < $%d", argIdx))
		args = append(args, seq)
		argIdx++
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	// Count total matching records.
	var total int
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM execution_records WHERE %s`, where)
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count execution records: %w", err)
	}

	// Fetch limit+1 to detect hasMore.
	fetchSQL := fmt.Sprintf(
		`SELECT %s FROM execution_records WHERE %s ORDER BY seq DESC LIMIT $%d`,
		recordColumns, where, argIdx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, fetchSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	defer rows.Close()

	var records []execution.Record
	var seqs []int64
	for rows.Next() {
		var rec execution.Record
		seq, err := scanRecord(rows, &rec)
		if err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		records = append(records, rec)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	var nextCursor string
	if hasMore && len(records) > 0 {
		nextCursor = strconv.FormatInt(seqs[len(records)-1], 10)
	}

	return &executionstore.Page{
		Records: orEmpty(records),
		Cursor:  nextCursor,
		HasMore: hasMore,
		Total:   total,
	}, nil
}

// Stats returns aggregate statistics, optionally scoped to one policy.
func (s *ExecutionStore) Stats(ctx context.Context, policyID string) (*executionstore.Summary, error) {
	// Aggregate counts per status in a single query.
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM execution_records
		 WHERE ($1 = '' OR policy_id = $1) GROUP BY status`, policyID)
	if err != nil {
		return nil, fmt.Errorf("execution stats counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	var total, succeeded, failures int
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan execution stat: %w", err)
		}
		counts[status] = count
		total += count
		st := execution.Status(status)
		if st.Success() {
			succeeded += count
		}
		if st.Failure() {
			failures += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Average wall time over completed evaluations.
	var avgElapsedMS int64
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(elapsed_ns) / 1e6, 0)::bigint FROM execution_records
		 WHERE ($1 = '' OR policy_id = $1)`, policyID).Scan(&avgElapsedMS)
	if err != nil {
		return nil, fmt.Errorf("execution stats elapsed: %w", err)
	}

	return &executionstore.Summary{
		Total:        total,
		StatusCounts: counts,
		Failures:     failures,
		Succeeded:    succeeded,
		AvgElapsedMS: avgElapsedMS,
	}, nil
}
