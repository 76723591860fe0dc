package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/domain"
)

// Store is a filesystem-based week archive. Each week is one JSON file.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

var _ planner.ArchiveStore = (*Store)(nil)

// NewStore creates a new filesystem archive rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// plainID reports whether id can name a file directly under baseDir.
func plainID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

func (s *Store) getFilePath(id string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", id))
}

// Archive writes week as a JSON file, replacing an earlier archive of the same week.
func (s *Store) Archive(ctx context.Context, week *domain.Week) error {
	if week == nil || !plainID(week.ID) {
		return fmt.Errorf("cannot archive week without a plain id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(week, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal week: %w", err)
	}

	if err := os.WriteFile(s.getFilePath(week.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// GetArchived reads the archived week with id. Ids that are not plain file
// names never match an archive.
func (s *Store) GetArchived(ctx context.Context, id string) (*domain.Week, error) {
	if !plainID(id) {
		return nil, fmt.Errorf("%w: archived week %q", domain.ErrWeekNotFound, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: archived week %s", domain.ErrWeekNotFound, id)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var week domain.Week
	if err := json.Unmarshal(data, &week); err != nil {
		return nil, fmt.Errorf("failed to unmarshal week: %w", err)
	}
	week.Recompute()

	return &week, nil
}

// ListArchived scans the directory for JSON files and loads them in parallel.
// Unreadable files are skipped.
func (s *Store) ListArchived(ctx context.Context) ([]*domain.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var mu sync.Mutex
	var weeks []*domain.Week
	var wg sync.WaitGroup

	// Limit concurrency to avoid "too many open files" on large directories.
	const maxConcurrency = 20
	semaphore := make(chan struct{}, maxConcurrency)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(filename string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			data, err := os.ReadFile(filepath.Join(s.baseDir, filename))
			if err != nil {
				return
			}

			var week domain.Week
			if err := json.Unmarshal(data, &week); err == nil {
				week.Recompute()
				mu.Lock()
				weeks = append(weeks, &week)
				mu.Unlock()
			}
		}(entry.Name())
	}

	wg.Wait()
	sortByStart(weeks)
	return weeks, nil
}

func sortByStart(weeks []*domain.Week) {
	slices.SortFunc(weeks, func(a, b *domain.Week) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
