package macro

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// libraryItem is a cached entry. The macro is the library's own copy and is
// never handed out.
type libraryItem struct {
	entry Entry
	macro *Macro
}

// Library stores macros by name with copy semantics: Save stores a copy of
// the caller's macro and every retrieval returns a fresh copy, so edits on
// either side never leak into the other.
//
// Entries are kept sorted by name after every mutation. Names are unique.
// Each entry also has a stable ID, used for selection and removal.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// the mutating operations. All public methods are thread-safe.
type Library struct {
	repo   Repository
	items  []*libraryItem // sorted by name
	mu     sync.RWMutex
	logger Logger
}

// NewLibrary creates a new macro library.
// The repository is used for persistence; the library adds caching.
func NewLibrary(repo Repository) *Library {
	return &Library{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the library.
func (l *Library) SetLogger(logger Logger) {
	l.logger = logger
}

// RefreshCache reloads all macros from the repository.
//
// Macros whose stored trees contain malformed nodes are loaded without
// those nodes and a warning is logged. Macros whose root cannot be decoded
// are left out of the cache.
func (l *Library) RefreshCache(ctx context.Context) error {
	stored, err := l.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading macros: %w", err)
	}

	items := make([]*libraryItem, 0, len(stored))
	for i := range stored {
		s := stored[i]
		m, loadErr := DecodeMacro(s.Tree)
		if m == nil {
			l.logger.Error("macro skipped", "id", s.ID, "name", s.Name, "error", loadErr)
			continue
		}
		if loadErr != nil {
			l.logger.Warn("macro loaded with errors", "id", s.ID, "name", s.Name, "error", loadErr)
		}
		m.SetName(s.Name)
		items = append(items, &libraryItem{entry: s.Entry, macro: m})
	}
	sortItems(items)

	l.mu.Lock()
	l.items = items
	l.mu.Unlock()

	l.logger.Info("macro cache refreshed", "count", len(items))
	return nil
}

// Save stores a copy of m under its name.
//
// If no entry has that name, a new entry is added. If one does and
// overwrite is true, its tree is replaced and its ID kept. If one does and
// overwrite is false, nothing changes. Save reports whether it stored m.
func (l *Library) Save(ctx context.Context, m *Macro, overwrite bool) (bool, error) {
	if err := ValidateMacro(m); err != nil {
		return false, err
	}
	cpy, err := CopyMacro(m)
	if err != nil {
		return false, fmt.Errorf("copying macro %q: %w", m.Name(), err)
	}
	rec, err := Encode(cpy)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexByName(m.Name()); i >= 0 {
		if !overwrite {
			return false, nil
		}
		item := l.items[i]
		stored := &StoredMacro{Entry: item.entry, Tree: rec}
		stored.Nodes = CountNodes(cpy)
		if err := l.repo.Update(ctx, stored); err != nil {
			return false, err
		}
		item.entry = stored.Entry
		item.macro = cpy
		l.logger.Info("macro replaced", "id", item.entry.ID, "name", item.entry.Name)
		return true, nil
	}

	stored := &StoredMacro{
		Entry: Entry{ID: GenerateID(), Name: m.Name(), Nodes: CountNodes(cpy)},
		Tree:  rec,
	}
	if err := l.repo.Create(ctx, stored); err != nil {
		return false, err
	}
	l.items = append(l.items, &libraryItem{entry: stored.Entry, macro: cpy})
	sortItems(l.items)

	l.logger.Info("macro saved", "id", stored.ID, "name", stored.Name)
	return true, nil
}

// Remove deletes the entry with the given ID. Removing an unknown ID is a
// no-op; Remove reports whether an entry was deleted.
func (l *Library) Remove(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexByID(id)
	if i < 0 {
		return false, nil
	}
	if err := l.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	name := l.items[i].entry.Name
	l.items = slices.Delete(l.items, i, i+1)

	l.logger.Info("macro removed", "id", id, "name", name)
	return true, nil
}

// Clear removes every entry.
func (l *Library) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.items) > 0 {
		id := l.items[0].entry.ID
		if err := l.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("clearing library: %w", err)
		}
		l.items = l.items[1:]
	}
	l.items = nil

	l.logger.Info("macro library cleared")
	return nil
}

// Rename changes an entry's name, keeping its ID.
func (l *Library) Rename(ctx context.Context, id, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexByID(id)
	if i < 0 {
		return ErrNotFound
	}
	if j := l.indexByName(name); j >= 0 && j != i {
		return ErrExists
	}

	item := l.items[i]
	cpy, err := CopyMacro(item.macro)
	if err != nil {
		return err
	}
	cpy.SetName(name)
	rec, err := Encode(cpy)
	if err != nil {
		return err
	}
	stored := &StoredMacro{Entry: item.entry, Tree: rec}
	stored.Name = name
	if err := l.repo.Update(ctx, stored); err != nil {
		return err
	}
	item.entry = stored.Entry
	item.macro = cpy
	sortItems(l.items)

	l.logger.Info("macro renamed", "id", id, "name", name)
	return nil
}

// Get returns a copy of the macro with the given name.
func (l *Library) Get(_ context.Context, name string) (*Macro, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexByName(name)
	if i < 0 {
		return nil, ErrNotFound
	}
	return CopyMacro(l.items[i].macro)
}

// Select returns a copy of the macro with the given entry ID.
func (l *Library) Select(_ context.Context, id string) (*Macro, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexByID(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return CopyMacro(l.items[i].macro)
}

// Lookup returns the entry with the given name.
func (l *Library) Lookup(name string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexByName(name)
	if i < 0 {
		return Entry{}, false
	}
	return l.items[i].entry, true
}

// Record returns the record form of the entry with the given ID.
func (l *Library) Record(_ context.Context, id string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexByID(id)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	return Encode(l.items[i].macro)
}

// List returns all entries sorted by name.
func (l *Library) List(_ context.Context) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.items))
	for i, item := range l.items {
		entries[i] = item.entry
	}
	return entries
}

// Count returns the number of entries.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// indexByName must be called with mu held.
func (l *Library) indexByName(name string) int {
	i, found := slices.BinarySearchFunc(l.items, name, func(item *libraryItem, name string) int {
		return strings.Compare(item.entry.Name, name)
	})
	if !found {
		return -1
	}
	return i
}

// indexByID must be called with mu held.
func (l *Library) indexByID(id string) int {
	return slices.IndexFunc(l.items, func(item *libraryItem) bool { return item.entry.ID == id })
}

func sortItems(items []*libraryItem) {
	slices.SortFunc(items, func(a, b *libraryItem) int {
		return strings.Compare(a.entry.Name, b.entry.Name)
	})
}
