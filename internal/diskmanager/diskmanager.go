// Package diskmanager prunes old episode files by age and disk usage.
package diskmanager

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

const componentDisk = "diskmanager"

// maxDeletions caps the files removed in one pass.
const maxDeletions = 1000

// Policy is the retention policy. Zero MaxAge or MaxUsage disables that rule.
type Policy struct {
	MaxAge      time.Duration
	MaxUsage    float64 // percent of the filesystem
	MinEpisodes int     // newest files never pruned
}

// PolicyFromSettings maps retention settings.
func PolicyFromSettings(s *conf.RetentionSettings) Policy {
	return Policy{MaxAge: s.MaxAge, MaxUsage: s.MaxUsage, MinEpisodes: s.MinEpisodes}
}

// FileInfo is one episode file on disk.
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Remover is told about pruned files, typically the episode catalogue.
type Remover interface {
	DeleteByPath(ctx context.Context, path string) error
}

// UsageFunc returns the used percentage of the filesystem holding dir.
type UsageFunc func(dir string) (float64, error)

// DiskUsage reports filesystem usage through gopsutil.
func DiskUsage(dir string) (float64, error) {
	u, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

// Pruner applies a Policy to the episode files under one directory.
type Pruner struct {
	dir     string
	exts    []string
	policy  Policy
	usage   UsageFunc
	remover Remover
	now     func() time.Time
	log     logger.Logger

	mu sync.Mutex // one pass at a time
}

// Option customizes a Pruner.
type Option func(*Pruner)

// WithRemover notifies r of every pruned file.
func WithRemover(r Remover) Option {
	return func(p *Pruner) { p.remover = r }
}

// WithUsage replaces the filesystem usage lookup.
func WithUsage(u UsageFunc) Option {
	return func(p *Pruner) { p.usage = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// NewPruner prunes files with the given extensions (".wav") under dir.
func NewPruner(dir string, exts []string, policy Policy, opts ...Option) *Pruner {
	p := &Pruner{
		dir:    dir,
		exts:   exts,
		policy: policy,
		usage:  DiskUsage,
		now:    time.Now,
		log:    logger.Global().Module(componentDisk),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result summarizes one pass.
type Result struct {
	Deleted int
	Freed   int64
}

// Prune deletes files older than MaxAge, then the oldest remaining files
// while usage is above MaxUsage. The MinEpisodes newest files and protect
// are always kept.
func (p *Pruner) Prune(ctx context.Context, protect string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	files, err := p.list()
	if err != nil {
		return Result{}, err
	}

	// Oldest first; the tail holds the files that are always kept.
	keep := min(max(p.policy.MinEpisodes, 0), len(files))
	candidates := files[:len(files)-keep]

	var res Result
	remove := func(f FileInfo) error {
		if err := p.remove(ctx, f); err != nil {
			return err
		}
		res.Deleted++
		res.Freed += f.Size
		return nil
	}

	i := 0
	if p.policy.MaxAge > 0 {
		cutoff := p.now().Add(-p.policy.MaxAge)
		for ; i < len(candidates) && candidates[i].ModTime.Before(cutoff); i++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if candidates[i].Path == protect || res.Deleted >= maxDeletions {
				continue
			}
			if err := remove(candidates[i]); err != nil {
				return res, err
			}
		}
	}

	if p.policy.MaxUsage > 0 {
		for ; i < len(candidates) && res.Deleted < maxDeletions; i++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			used, err := p.usage(p.dir)
			if err != nil {
				return res, errors.New(err).
					Component(componentDisk).
					Category(errors.CategoryDiskUsage).
					Context("dir", p.dir).
					Build()
			}
			if used <= p.policy.MaxUsage {
				break
			}
			if candidates[i].Path == protect {
				continue
			}
			if err := remove(candidates[i]); err != nil {
				return res, err
			}
		}
	}

	if res.Deleted > 0 {
		p.log.Info("retention policy applied",
			logger.Int("files_deleted", res.Deleted),
			logger.Int64("bytes_freed", res.Freed))
	}
	return res, nil
}

func (p *Pruner) remove(ctx context.Context, f FileInfo) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.New(err).
			Component(componentDisk).
			Category(errors.CategoryDiskCleanup).
			Context("path", f.Path).
			Build()
	}
	p.log.Debug("episode file pruned", logger.String("path", f.Path))

	if p.remover != nil {
		if err := p.remover.DeleteByPath(ctx, f.Path); err != nil {
			p.log.Warn("failed to remove pruned episode from catalogue",
				logger.String("path", f.Path), logger.Error(err))
		}
	}
	return nil
}

// list returns the episode files under dir, oldest first.
func (p *Pruner) list() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !p.matches(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		files = append(files, FileInfo{Path: path, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentDisk).
			Category(errors.CategoryFileIO).
			Context("dir", p.dir).
			Build()
	}

	slices.SortStableFunc(files, func(a, b FileInfo) int {
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

func (p *Pruner) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(p.exts, ext)
}
