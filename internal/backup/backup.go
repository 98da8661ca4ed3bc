// Package backup takes point-in-time copies of the SQLite database and
// prunes old ones.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "fintrack/internal/log"
)

const (
	prefix      = "fintrack-"
	suffix      = ".db"
	stampLayout = "20060102-150405"
	defaultKeep = 7
)

// Snapshotter writes a consistent copy of the live database to dest.
// *storage.SQLiteStore implements it with VACUUM INTO.
type Snapshotter interface {
	VacuumInto(ctx context.Context, dest string) error
}

type Options struct {
	Dir         string
	MinInterval time.Duration
	Keep        int
	Now         func() time.Time
	Logger      *applog.Logger
}

// Info describes one backup file.
type Info struct {
	Name  string
	Path  string
	Taken time.Time
	Size  int64
}

type Service struct {
	db   Snapshotter
	opts Options
	log  *applog.Logger
}

func New(db Snapshotter, opts Options) *Service {
	if opts.Keep < 1 {
		opts.Keep = defaultKeep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Nop()
	}
	return &Service{db: db, opts: opts, log: logger}
}

// MaybeBackup takes a backup when the newest one is older than MinInterval
// (or none exists). It returns the new file, or "" when nothing was due.
func (s *Service) MaybeBackup(ctx context.Context) (string, error) {
	list, err := s.List()
	if err != nil {
		return "", err
	}
	if len(list) > 0 {
		age := s.opts.Now().Sub(list[0].Taken)
		if age < s.opts.MinInterval {
			s.log.DebugContext(ctx, "Backup not due",
				"newest", list[0].Name, "age", age.Round(time.Second).String())
			return "", nil
		}
	}
	return s.Run(ctx)
}

// Run takes a backup now and applies retention.
func (s *Service) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	now := s.opts.Now().UTC()
	dest := filepath.Join(s.opts.Dir, prefix+now.Format(stampLayout)+suffix)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup %s already exists", dest)
	}

	start := time.Now()
	if err := s.db.VacuumInto(ctx, dest); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}
	s.log.InfoContext(ctx, "Backup created",
		applog.FieldOperation, applog.OpBackup,
		applog.FieldPath, dest,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if err := s.prune(ctx); err != nil {
		return dest, err
	}
	return dest, nil
}

// List returns the backups in Dir, newest first. Files not named by this
// package are ignored.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		taken, err := time.Parse(stampLayout, stamp)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		out = append(out, Info{
			Name:  name,
			Path:  filepath.Join(s.opts.Dir, name),
			Taken: taken,
			Size:  info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Taken.After(out[j].Taken) })
	return out, nil
}

func (s *Service) prune(ctx context.Context) error {
	list, err := s.List()
	if err != nil {
		return err
	}
	for _, old := range list[min(len(list), s.opts.Keep):] {
		if err := os.Remove(old.Path); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
		s.log.DebugContext(ctx, "Old backup removed", applog.FieldPath, old.Path)
	}
	return nil
}
