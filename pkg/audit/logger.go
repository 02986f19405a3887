// Package audit keeps a SQLite journal of handled messages.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/models"
)

// maxErrorLen bounds the stored error text.
const maxErrorLen = 1024

// Logger writes and queries journal entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	now  func() time.Time
	log  zerolog.Logger
	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides time.Now for retention decisions.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New opens the journal database, creates the schema and starts the hourly
// retention loop.
func New(cfg models.AuditConfig, opts ...Option) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		log:  logging.Component("audit"),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS message_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  TEXT NOT NULL,
		type        TEXT NOT NULL,
		target      TEXT,
		code        TEXT,
		error       TEXT,
		latency_ms  INTEGER,
		created_at  INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_message_id ON message_log(message_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_message_type ON message_log(type)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_message_created ON message_log(created_at)`)
	return err
}

// Log appends an entry. Callers may reuse message ids; every call is kept.
// A nil Logger discards the entry.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if !l.cfg.Targets {
		entry.Target = ""
	}
	if len(entry.Error) > maxErrorLen {
		entry.Error = entry.Error[:maxErrorLen]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO message_log
		(message_id, type, target, code, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.MessageID, entry.Type, entry.Target, entry.Code, entry.Error,
		entry.LatencyMs, entry.CreatedAt.UnixMilli(),
	)
	return err
}

// Query returns entries matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT message_id, type, target, code, error, latency_ms, created_at
		FROM message_log WHERE 1=1`
	var args []any

	if opts.MessageID != "" {
		q += " AND message_id = ?"
		args = append(args, opts.MessageID)
	}
	if opts.Type != "" {
		q += " AND type = ?"
		args = append(args, opts.Type)
	}
	if opts.FailedOnly {
		q += " AND code <> ''"
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UnixMilli())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e                    models.AuditEntry
			target, code, errMsg sql.NullString
			createdAt            int64
		)
		if err := rows.Scan(&e.MessageID, &e.Type, &target, &code, &errMsg, &e.LatencyMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Target = target.String
		e.Code = code.String
		e.Error = errMsg.String
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts grouped by message type and UTC day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT type, date(created_at / 1000, 'unixepoch') AS day, count(*),
		        sum(CASE WHEN code <> '' THEN 1 ELSE 0 END)
		 FROM message_log GROUP BY type, day ORDER BY day DESC, type`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Type, &day, &s.Count, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM message_log WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background())
			if err != nil {
				l.log.Warn().Err(err).Msg("audit cleanup failed")
				continue
			}
			if n > 0 {
				l.log.Debug().Int64("removed", n).Msg("audit entries expired")
			}
		}
	}
}
