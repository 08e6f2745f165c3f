package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/readspace/ielts-backend/internal/config"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	auditBatchSize    = 50
	auditBatchTimeout = 2 * time.Second
	auditPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationAuditWorker drains the Redis violation queue into the durable
// violation_audit table in batches. The attempt log is the source of truth;
// this table exists for cross-attempt reporting without unpacking JSONB.
type ViolationAuditWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewViolationAuditWorker creates a new ViolationAuditWorker.
func NewViolationAuditWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationAuditWorker {
	return &ViolationAuditWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_audit_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled, then flushes what is
// left in the buffer.
func (w *ViolationAuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Violation audit worker started")

	buffer := make([]*model.ViolationAuditRecord, 0, auditBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= auditBatchSize || time.Since(lastFlush) >= auditBatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlush = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop blocks for the poll timeout. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, auditPollTimeout, config.WorkerKey.ViolationAuditQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var record model.ViolationAuditRecord
		if err := json.Unmarshal([]byte(result[1]), &record); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed audit record")
			continue
		}

		buffer = append(buffer, &record)
	}
}

// flushSafe attempts bulk insert, then row-by-row fallback, then requeue.
func (w *ViolationAuditWorker) flushSafe(ctx context.Context, batch []*model.ViolationAuditRecord) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationAuditWorker) bulkInsert(ctx context.Context, batch []*model.ViolationAuditRecord) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, r := range batch {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			r.AttemptID, r.SessionID, r.StudentID, string(r.ViolationType), metadata, r.OccurredAt,
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_audit"},
		[]string{"attempt_id", "session_id", "student_id", "violation_type", "metadata", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationAuditWorker) fallbackInsert(ctx context.Context, batch []*model.ViolationAuditRecord) {
	requeueList := make([]*model.ViolationAuditRecord, 0)

	for _, r := range batch {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", r.AttemptID.String()).Msg("Dropping audit record with unmarshalable metadata")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO violation_audit (attempt_id, session_id, student_id, violation_type, metadata, occurred_at)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
			r.AttemptID, r.SessionID, r.StudentID, string(r.ViolationType), metadata, r.OccurredAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", r.AttemptID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, r)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationAuditWorker) requeue(ctx context.Context, items []*model.ViolationAuditRecord) {
	pipe := w.rdb.Pipeline()
	for _, r := range items {
		data, _ := json.Marshal(r)
		pipe.RPush(ctx, config.WorkerKey.ViolationAuditQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue audit records. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed audit records")
	// Back off so a hard-down DB doesn't thrash the loop.
	time.Sleep(2 * time.Second)
}

func (w *ViolationAuditWorker) shutdown(buffer []*model.ViolationAuditRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
