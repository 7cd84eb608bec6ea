package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/pricing"
)

// Status describes the last sync.
type Status struct {
	Commit     string    `json:"commit"`
	Services   int       `json:"services"`
	SyncedAt   time.Time `json:"synced_at"`
	LastError  string    `json:"last_error,omitempty"`
	FailedSync int64     `json:"failed_syncs"`
}

// Source syncs a pricing table from git into a calculator.
type Source struct {
	cfg       config.PricingGitConfig
	localPath string
	auth      transport.AuthMethod
	calc      *pricing.Calculator
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	repo   *gogit.Repository
	status Status
}

// New validates cfg and prepares a source feeding calc. No network access
// happens until Sync.
func New(cfg config.PricingGitConfig, calc *pricing.Calculator, logger *slog.Logger) (*Source, error) {
	if cfg.Repository == "" {
		return nil, errors.New("pricing git: repository is required")
	}
	if cfg.Branch == "" {
		return nil, errors.New("pricing git: branch is required")
	}
	if cfg.Path == "" {
		return nil, errors.New("pricing git: path is required")
	}
	if calc == nil {
		return nil, errors.New("pricing git: calculator is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultPricingGitTimeout
	}
	auth, err := authMethod(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("pricing git: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	local := cfg.LocalPath
	if local == "" {
		local = filepath.Join(os.TempDir(), "meter-pricing")
	}
	return &Source{
		cfg:       cfg,
		localPath: local,
		auth:      auth,
		calc:      calc,
		logger:    logger.With("component", "pricing.git"),
		now:       time.Now,
	}, nil
}

// Sync makes sure the repository is checked out, pulls when it already was,
// and loads the table. It returns the loaded table so callers can report
// on it.
func (s *Source) Sync(ctx context.Context) (pricing.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		if err := s.openOrClone(ctx); err != nil {
			return s.fail(err)
		}
	} else if err := s.pull(ctx); err != nil {
		return s.fail(err)
	}

	head, err := s.repo.Head()
	if err != nil {
		return s.fail(fmt.Errorf("failed to read HEAD: %w", err))
	}
	commit := head.Hash().String()
	if commit == s.status.Commit {
		return s.calc.Table(), nil
	}

	table, err := pricing.LoadTable(filepath.Join(s.localPath, s.cfg.Path))
	if err != nil {
		return s.fail(fmt.Errorf("commit %s: %w", short(commit), err))
	}
	s.calc.UpdatePricing(table)

	s.status.Commit = commit
	s.status.Services = len(table.Services)
	s.status.SyncedAt = s.now()
	s.status.LastError = ""
	s.logger.Info("pricing table synced",
		"repository", s.cfg.Repository,
		"commit", short(commit),
		"services", len(table.Services),
	)
	return table, nil
}

// Run pulls on the poll interval until ctx is done. Failures are logged and
// the previous table stays active.
func (s *Source) Run(ctx context.Context) error {
	if s.cfg.PollInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("pricing sync failed, keeping previous table", "error", err)
			}
		}
	}
}

// Status returns the state of the last sync.
func (s *Source) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Source) fail(err error) (pricing.Table, error) {
	s.status.LastError = err.Error()
	s.status.FailedSync++
	return pricing.Table{}, err
}

func (s *Source) openOrClone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		s.repo = repo
		return s.pull(ctx)
	}

	if err := os.MkdirAll(s.localPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	cloneCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.localPath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Depth:         s.cfg.Depth,
		Auth:          s.auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	return nil
}

// pull fast-forwards the worktree. Never forced, so local edits surface as
// errors instead of being lost.
func (s *Source) pull(ctx context.Context) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	pullCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err = wt.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          s.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull: %w", err)
	}
	return nil
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
