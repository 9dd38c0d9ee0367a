package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// store reads and writes one JSON document per entity. Writes go through a
// temporary file and a rename so concurrent readers never see partial files.
type store struct {
	root    string
	mu      *sync.Mutex
	journal *journal // set while a transaction is open
}

// journal remembers the content each path had before the transaction touched
// it, so a rollback can put it back.
type journal struct {
	original map[string][]byte // nil value means the file did not exist
	order    []string
}

func newJournal() *journal {
	return &journal{original: make(map[string][]byte)}
}

func (s *store) inTransaction() bool {
	return s.journal != nil
}

// exclusive runs fn holding the writer lock unless a transaction already
// holds it.
func (s *store) exclusive(fn func() error) error {
	if s.inTransaction() {
		return fn()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn()
}

func (s *store) path(dir, id string) string {
	return filepath.Clean(filepath.Join(s.root, dir, id+".json"))
}

func (s *store) read(dir, id string, target any) (bool, error) {
	body, err := os.ReadFile(s.path(dir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// ids lists the identifiers stored under dir.
func (s *store) ids(dir string) ([]string, error) {
	matches, err := fs.Glob(os.DirFS(filepath.Join(s.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(match, ".json"))
	}

	return ids, nil
}

func (s *store) write(dir, id string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	err = os.MkdirAll(filepath.Join(s.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	target := s.path(dir, id)

	if s.journal != nil {
		err = s.journal.remember(target)
		if err != nil {
			return err
		}
	}

	return writeAtomic(target, data)
}

func (j *journal) remember(path string) error {
	if _, seen := j.original[path]; seen {
		return nil
	}

	body, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to snapshot %s: %w", path, err)
	}

	j.original[path] = body
	j.order = append(j.order, path)

	return nil
}

// rollback restores every touched path, newest first.
func (j *journal) rollback() error {
	var errs []error

	for i := len(j.order) - 1; i >= 0; i-- {
		path := j.order[i]
		body := j.original[path]

		if body == nil {
			err := os.Remove(path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}

			continue
		}

		err := writeAtomic(path, body)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	err = tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// collection is a typed view over one directory of the store.
type collection[T any] struct {
	store *store
	dir   string
}

func (c collection[T]) get(id string) (*T, error) {
	if id == "" {
		return nil, nil
	}

	var value T

	found, err := c.store.read(c.dir, id, &value)
	if err != nil || !found {
		return nil, err
	}

	return &value, nil
}

func (c collection[T]) all() ([]*T, error) {
	ids, err := c.store.ids(c.dir)
	if err != nil {
		return nil, err
	}

	values := make([]*T, 0, len(ids))

	for _, id := range ids {
		value, err := c.get(id)
		if err != nil {
			return nil, err
		}

		if value != nil {
			values = append(values, value)
		}
	}

	return values, nil
}

// filter returns every stored value keep accepts.
func (c collection[T]) filter(keep func(*T) bool) ([]*T, error) {
	values, err := c.all()
	if err != nil {
		return nil, err
	}

	kept := values[:0]

	for _, value := range values {
		if keep(value) {
			kept = append(kept, value)
		}
	}

	return kept, nil
}

func (c collection[T]) put(id string, value *T) error {
	return c.store.write(c.dir, id, value)
}
