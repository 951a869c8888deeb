package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 250 * time.Millisecond

// document is the on-disk shape: an active profile name plus the profiles
// keyed by name.
type document struct {
	Active   string              `json:"active"`
	Profiles map[string]*Profile `json:"profiles"`
}

func defaultDocument() document {
	def := DefaultProfile()
	return document{
		Active:   def.Name,
		Profiles: map[string]*Profile{def.Name: def},
	}
}

// Store persists profiles as a single JSON document. Watch hot-reloads the
// document when the file changes on disk, so profiles can be edited without
// a restart. A missing file yields the default document; Save creates it.
type Store struct {
	logger   *logrus.Logger
	path     string
	debounce time.Duration

	mu  sync.RWMutex
	doc document

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewStore loads the profile document at path. An empty path or a missing
// file starts from the built-in default profile. A file that exists but
// cannot be parsed is an error.
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	s := &Store{
		logger:   logger,
		path:     path,
		debounce: defaultDebounce,
		doc:      defaultDocument(),
	}

	if path == "" {
		return s, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.WithField("path", path).Info("Profile file not found, using default profile")
		return s, nil
	}

	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read profile file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse profile file: %w", err)
	}

	if doc.Profiles == nil {
		doc.Profiles = make(map[string]*Profile)
	}
	for name, p := range doc.Profiles {
		if p == nil {
			delete(doc.Profiles, name)
			continue
		}
		p.Name = name
		p.applyDefaults()
	}
	if doc.Active != "" {
		if _, ok := doc.Profiles[doc.Active]; !ok {
			s.logger.WithField("profile", doc.Active).Warn("Active profile not defined in profile file")
		}
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Watch starts the change watcher. It is a no-op for path-less stores.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create profile watcher: %w", err)
	}

	// Watch the directory so atomic replace-by-rename edits are seen.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch profile directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.watcher = watcher
	s.cancel = cancel
	go s.processEvents(ctx)

	s.logger.WithField("path", s.path).Info("Watching profile file for changes")
	return nil
}

// processEvents debounces change events and reloads the document once the
// file has been quiet for the debounce interval.
func (s *Store) processEvents(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var lastChange time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				lastChange = time.Now()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("Profile watcher error")

		case <-ticker.C:
			if lastChange.IsZero() || time.Since(lastChange) < s.debounce {
				continue
			}
			lastChange = time.Time{}
			if err := s.reload(); err != nil {
				s.logger.WithError(err).Warn("Profile reload failed, keeping previous profiles")
				continue
			}
			s.logger.WithField("path", s.path).Info("Profiles reloaded")
		}
	}
}

// Close stops the watcher. Safe to call more than once.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Active returns the active profile, or nil when the active name does not
// resolve. Callers treat the returned profile as read-only.
func (s *Store) Active() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Profiles[s.doc.Active]
}

// ActiveName returns the configured active profile name.
func (s *Store) ActiveName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Active
}

// Get returns a profile by name.
func (s *Store) Get(name string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.doc.Profiles[name]
	return p, ok
}

// List returns all profiles sorted by name.
func (s *Store) List() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Profile, 0, len(s.doc.Profiles))
	for _, p := range s.doc.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetActive switches the active profile and persists the document when the
// store is file-backed.
func (s *Store) SetActive(name string) error {
	s.mu.Lock()
	if _, ok := s.doc.Profiles[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown profile %q", name)
	}
	s.doc.Active = name
	s.mu.Unlock()

	s.logger.WithField("profile", name).Info("Active profile changed")
	return s.save()
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode profile file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}
