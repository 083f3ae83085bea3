package backup

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/insider-trader/internal/events"
)

// tables included in a snapshot, restored in this order
var tables = []string{
	"signals",
	"positions",
	"orders",
	"cycles",
	"cycle_states",
	"allocation_decisions",
	"filer_stats",
	"philosophy_state",
	"scenario_states",
	"portfolio_snapshots",
	"quotes_cache",
	"audit_log",
}

// Snapshot is one full database image
type Snapshot struct {
	CreatedAt time.Time                           `msgpack:"created_at"`
	Tables    map[string][]map[string]interface{} `msgpack:"tables"`
}

// Info describes one stored backup
type Info struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Config configures the backup service
type Config struct {
	Bucket string
	Prefix string
	Region string
	DB     *sql.DB
	Events *events.Manager
	Log    zerolog.Logger
}

// Service snapshots engine state to S3 and restores it back. The
// service is inert when no bucket is configured.
type Service struct {
	db     *sql.DB
	client *s3.Client
	bucket string
	prefix string
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates the backup service. A missing bucket disables it
// without error; AWS credential problems surface on first use.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	svc := &Service{
		db:     cfg.DB,
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
		events: cfg.Events,
		log:    cfg.Log.With().Str("component", "backup").Logger(),
	}

	if cfg.Bucket == "" {
		svc.log.Info().Msg("Backups disabled, no bucket configured")
		return svc, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	svc.client = s3.NewFromConfig(awsCfg)

	return svc, nil
}

// Enabled reports whether backups are configured
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Create snapshots every table and uploads the image. Returns the S3 key.
func (s *Service) Create(ctx context.Context) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("backups are not configured")
	}

	snapshot := Snapshot{
		CreatedAt: time.Now().UTC(),
		Tables:    make(map[string][]map[string]interface{}, len(tables)),
	}

	for _, table := range tables {
		rows, err := s.dumpTable(table)
		if err != nil {
			return "", err
		}
		snapshot.Tables[table] = rows
	}

	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := fmt.Sprintf("%s/%s.msgpack", s.prefix, snapshot.CreatedAt.Format("20060102T150405Z"))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().Str("key", key).Int("bytes", len(payload)).Msg("Backup created")
	s.events.Emit(events.BackupCreated, "backup", map[string]interface{}{
		"key":  key,
		"size": len(payload),
	})

	return key, nil
}

// List returns the stored backups, newest first
func (s *Service) List(ctx context.Context) ([]Info, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("backups are not configured")
	}

	prefix := s.prefix + "/"
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	infos := make([]Info, 0, len(out.Contents))
	for _, obj := range out.Contents {
		info := Info{Key: *obj.Key}
		if obj.Size != nil {
			info.Size = *obj.Size
		}
		if obj.LastModified != nil {
			info.CreatedAt = *obj.LastModified
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })

	return infos, nil
}

// Restore downloads a snapshot and replaces the current table contents
// with it, all inside one transaction.
func (s *Service) Restore(ctx context.Context, key string) error {
	if !s.Enabled() {
		return fmt.Errorf("backups are not configured")
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to download backup: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	var snapshot Snapshot
	if err := msgpack.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
		for _, row := range snapshot.Tables[table] {
			if err := insertRow(tx, table, row); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}

	s.log.Warn().Str("key", key).Time("snapshot", snapshot.CreatedAt).Msg("State restored from backup")
	return nil
}

// dumpTable reads a whole table into generic rows
func (s *Service) dumpTable(table string) ([]map[string]interface{}, error) {
	rows, err := s.db.Query("SELECT * FROM " + table)
	if err != nil {
		return nil, fmt.Errorf("failed to dump %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// insertRow rebuilds one generic row. Column order is sorted so the
// statement text is stable.
func insertRow(tx *sql.Tx, table string, row map[string]interface{}) error {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = row[col]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to restore %s row: %w", table, err)
	}

	return nil
}
