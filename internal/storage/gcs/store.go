package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/domain"
	"google.golang.org/api/iterator"
)

// Store is a GCS-based week archive. Each week is one JSON object.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ planner.ArchiveStore = (*Store)(nil)

// NewStore creates a new GCS archive writing objects under prefix.
// It assumes the client is authenticated (e.g. via GOOGLE_APPLICATION_CREDENTIALS).
func NewStore(ctx context.Context, bucketName, prefix string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Store{
		client: client,
		bucket: bucketName,
		prefix: prefix,
	}, nil
}

// Close releases the GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(id string) string {
	return fmt.Sprintf("%s%s.json", s.prefix, id)
}

// Archive writes week as a JSON object, replacing an earlier archive of the same week.
func (s *Store) Archive(ctx context.Context, week *domain.Week) error {
	if week == nil || week.ID == "" {
		return fmt.Errorf("cannot archive week without an id")
	}

	data, err := json.Marshal(week)
	if err != nil {
		return fmt.Errorf("failed to marshal week: %w", err)
	}

	w := s.client.Bucket(s.bucket).Object(s.objectName(week.ID)).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// GetArchived reads the archived week with id from GCS.
func (s *Store) GetArchived(ctx context.Context, id string) (*domain.Week, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(id)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: archived week %s", domain.ErrWeekNotFound, id)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	defer r.Close()

	var week domain.Week
	if err := json.NewDecoder(r).Decode(&week); err != nil {
		return nil, fmt.Errorf("failed to decode week: %w", err)
	}
	week.Recompute()
	return &week, nil
}

// ListArchived scans the prefix for JSON objects and loads them in parallel.
// Unreadable objects are skipped.
func (s *Store) ListArchived(ctx context.Context) ([]*domain.Week, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})

	var objectNames []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if strings.HasSuffix(attrs.Name, ".json") {
			objectNames = append(objectNames, attrs.Name)
		}
	}

	var mu sync.Mutex
	var weeks []*domain.Week
	var wg sync.WaitGroup

	// GCS handles 20+ concurrent requests well, but we stay conservative.
	const maxConcurrency = 20
	semaphore := make(chan struct{}, maxConcurrency)

	for _, name := range objectNames {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(objectName string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			r, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
			if err != nil {
				return
			}
			defer r.Close()

			data, err := io.ReadAll(r)
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
		}(name)
	}

	wg.Wait()
	slices.SortFunc(weeks, func(a, b *domain.Week) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return weeks, nil
}

// deleteAll removes every archived object under the prefix.
func (s *Store) deleteAll(ctx context.Context) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		if err := s.client.Bucket(s.bucket).Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", attrs.Name, err)
		}
	}
}
