package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/meter/pkg/ledger"
	"mercator-hq/meter/pkg/ledger/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Days is the age after which entries are pruned. 0 disables pruning.
	Days int

	// Schedule is a cron expression, e.g. "0 3 * * *".
	Schedule string

	// ArchivePath, when set, is a directory receiving a JSON archive of
	// each batch before it is deleted.
	ArchivePath string
}

// Pruner deletes ledger entries older than the retention period.
type Pruner struct {
	storage ledger.Storage
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(storage ledger.Storage, config Config, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		storage: storage,
		config:  config,
		logger:  logger.With("component", "retention.pruner"),
		now:     time.Now,
	}
}

// Prune deletes entries with a timestamp at or before now minus the
// retention period and returns the number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.Days <= 0 {
		return 0, nil
	}

	cutoff := p.now().UTC().AddDate(0, 0, -p.config.Days)
	query := &ledger.Query{EndTime: &cutoff}

	if p.config.ArchivePath != "" {
		if err := p.archive(ctx, query, cutoff); err != nil {
			return 0, ledger.NewRetentionError(p.config.Days, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, ledger.NewRetentionError(p.config.Days, err)
	}

	if deleted > 0 {
		p.logger.Info("pruned cost entries",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
			"retention_days", p.config.Days,
		)
	} else {
		p.logger.Debug("no cost entries pruned", "cutoff_time", cutoff)
	}
	return deleted, nil
}

// archive writes every entry matching query to a timestamped JSON file.
func (p *Pruner) archive(ctx context.Context, query *ledger.Query, cutoff time.Time) error {
	count, err := p.storage.Count(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if count == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	path := filepath.Join(p.config.ArchivePath,
		fmt.Sprintf("cost-entries-before-%s.json", cutoff.Format("20060102T150405Z")))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	entriesCh, errCh, err := p.storage.QueryStream(ctx, query)
	if err != nil {
		return err
	}
	written, err := export.EntriesJSON(ctx, entriesCh, f)
	if err != nil {
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive: %w", err)
	}

	p.logger.Info("archived cost entries", "path", path, "archived_count", written)
	return nil
}
