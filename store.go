package detect

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// StoreConfig is used as argument to creating a new rule store
type StoreConfig struct {
	// root directories for recursive rule search
	// rules must be readable files with a yml or yaml suffix
	Directory []string
	// Logger receives parse failures, duplicate id collisions and load
	// summaries. Defaults to logrus standard logger.
	Logger *logrus.Logger
}

func (c StoreConfig) validate() error {
	if len(c.Directory) == 0 {
		return fmt.Errorf("missing root directory for detection rules")
	}
	for _, dir := range c.Directory {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// LoadResult summarizes one corpus load. Broken rule files are counted
// rather than fatal so operators can see "412 loaded, 3 skipped" and
// judge whether that is acceptable.
type LoadResult struct {
	Total     int `json:"total"`
	Loaded    int `json:"loaded"`
	Failed    int `json:"failed"`
	Duplicate int `json:"duplicate"`
}

func (r LoadResult) String() string {
	return fmt.Sprintf("%d loaded, %d skipped, %d duplicate of %d files",
		r.Loaded, r.Failed, r.Duplicate, r.Total)
}

// Store holds the loaded rule corpus along with per-rule enabled state.
// Mutations are serialized against concurrent readers; a reload builds
// the new corpus off to the side and swaps it in atomically, so readers
// never observe a partially loaded corpus.
type Store struct {
	mu     sync.RWMutex
	rules  []*Rule
	index  map[string]*Rule
	dirs   []string
	logger *logrus.Logger
}

// NewStore instantiates an empty store; call Load to populate it
func NewStore(c StoreConfig) (*Store, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		dirs:   c.Directory,
		index:  make(map[string]*Rule),
		logger: logger,
	}, nil
}

// Load scans the configured directories recursively, parses every rule
// definition and replaces the prior corpus in one swap. Files that
// fail to parse are skipped and counted. Duplicate rule ids keep the
// first seen rule; the collision is logged, not fatal.
func (s *Store) Load() (LoadResult, error) {
	var res LoadResult
	rules := make([]*Rule, 0)
	index := make(map[string]*Rule)
	parseErrs := make([]ErrParseYaml, 0)
	for _, dir := range s.dirs {
		files, err := ruleFileList(dir)
		if err != nil {
			return res, err
		}
		res.Total += len(files)
		for _, path := range files {
			rule, err := ParseRuleFile(path, dir)
			if err != nil {
				res.Failed++
				perr := ErrParseYaml{Path: path, Err: err}
				parseErrs = append(parseErrs, perr)
				s.logger.WithFields(logrus.Fields{
					"path": path,
				}).Warn(perr)
				continue
			}
			if prev, seen := index[rule.ID]; seen {
				res.Duplicate++
				s.logger.WithFields(logrus.Fields{
					"id":    rule.ID,
					"path":  path,
					"first": prev.Path,
				}).Warn("duplicate rule id, keeping first seen")
				continue
			}
			if !rule.HasRecognizedLevel() {
				s.logger.WithFields(logrus.Fields{
					"id":    rule.ID,
					"level": rule.rawLevel,
				}).Warn("unrecognized rule level, falling back to medium")
			}
			index[rule.ID] = rule
			rules = append(rules, rule)
		}
	}
	res.Loaded = len(rules)
	if res.Total == 0 {
		return res, ErrNoRulesLoaded
	}
	if res.Loaded == 0 {
		return res, ErrBulkParseYaml{Errs: parseErrs}
	}
	s.mu.Lock()
	s.rules = rules
	s.index = index
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{
		"total":     res.Total,
		"loaded":    res.Loaded,
		"failed":    res.Failed,
		"duplicate": res.Duplicate,
	}).Info("rule corpus loaded")
	return res, nil
}

// Filter narrows List output. Nil Enabled means both states.
type Filter struct {
	Category string
	Enabled  *bool
}

func (f Filter) matches(r *Rule) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Enabled != nil && r.Enabled != *f.Enabled {
		return false
	}
	return true
}

// List returns rule snapshots in insertion order, optionally filtered
// by category and enabled state
func (s *Store) List(f Filter) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if f.matches(r) {
			out = append(out, *r)
		}
	}
	return out
}

// Get returns a snapshot of one rule by id
func (s *Store) Get(id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.index[id]
	if !ok {
		return Rule{}, ErrRuleNotFound{ID: id}
	}
	return *r, nil
}

// Toggle flips the enabled flag of a single rule
func (s *Store) Toggle(id string, enabled bool) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.index[id]
	if !ok {
		return Rule{}, ErrRuleNotFound{ID: id}
	}
	r.Enabled = enabled
	return *r, nil
}

// BulkToggle sets enabled for every rule, or every rule in a category
// when one is given, in one atomic operation. Returns the number of
// rules affected.
func (s *Store) BulkToggle(enabled bool, category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	for _, r := range s.rules {
		if category != "" && r.Category != category {
			continue
		}
		r.Enabled = enabled
		count++
	}
	return count
}

// Enabled returns the rules the engine should evaluate, reflecting
// toggle state at call time. The returned slice is a snapshot; an
// in-flight evaluation keeps matching against it even if the corpus is
// reloaded underneath.
func (s *Store) Enabled() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the total rule count
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Categories returns the distinct rule categories, sorted
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, r := range s.rules {
		seen[r.Category] = true
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Watch reloads the corpus whenever rule files under the configured
// directories change. Events are debounced so a git pull touching
// hundreds of files triggers one reload. Returns after watcher setup;
// the reload loop runs until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range s.dirs {
		if err := watchRecursive(watcher, dir); err != nil {
			watcher.Close()
			return err
		}
	}
	go func() {
		defer watcher.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						watchRecursive(watcher, event.Name)
					}
				}
				if !isRuleFile(event.Name) && event.Op&fsnotify.Create == 0 {
					continue
				}
				debounce.Reset(500 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("rule directory watch error")
			case <-debounce.C:
				if _, err := s.Load(); err != nil {
					s.logger.WithError(err).Error("rule corpus reload failed")
				}
			}
		}
	}()
	return nil
}

func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// ruleFileList finds all rule definitions under a root directory
// Subtree is scanned recursively
// No file validation, other than suffix matching
func ruleFileList(dir string) ([]string, error) {
	out := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRuleFile(path) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func isRuleFile(path string) bool {
	return strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")
}
