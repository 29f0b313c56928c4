package rules

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forenx/sentinel/internal/metrics"
)

// Set is the active rule set. Swaps are atomic with respect to readers,
// so a reload never exposes a half-loaded mixture of old and new rules.
type Set struct {
	mu    sync.RWMutex
	rules []*Rule
}

// NewSet creates a Set holding the given rules.
func NewSet(rules []*Rule) *Set {
	return &Set{rules: rules}
}

// Active returns the enabled rules in the current set.
func (s *Set) Active() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.IsEnabled() {
			active = append(active, rule)
		}
	}
	return active
}

// Len returns the total number of loaded rules, enabled or not.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Swap replaces the rule set.
func (s *Set) Swap(rules []*Rule) {
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

// Watcher reloads a Set when the rules directory changes. Edits are
// debounced so one save (which editors often split into several
// filesystem events) triggers a single reload. A reload that fails
// validation keeps the previous set.
type Watcher struct {
	dir      string
	set      *Set
	debounce time.Duration
	watcher  *fsnotify.Watcher

	done      chan struct{}
	closeOnce sync.Once
}

// DefaultDebounce is the delay between a filesystem event and the reload.
const DefaultDebounce = 500 * time.Millisecond

// NewWatcher loads the directory into a fresh Set and starts watching it.
// Pass debounce <= 0 for the default.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve rules directory: %w", err)
	}

	rules, err := LoadDir(absDir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(absDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch rules directory: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		dir:      absDir,
		set:      NewSet(rules),
		debounce: debounce,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	metrics.CustomRulesActive.Set(float64(len(w.set.Active())))
	return w, nil
}

// Set returns the live rule set.
func (w *Watcher) Set() *Set {
	return w.set
}

// Run processes filesystem events until the context is cancelled or
// Close is called. Call it in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isRuleFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("rules watcher error: %v", err)
		case <-reload:
			w.reload()
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) reload() {
	rules, err := LoadDir(w.dir)
	if err != nil {
		log.Printf("rules reload failed, keeping previous set: %v", err)
		return
	}
	w.set.Swap(rules)
	metrics.CustomRulesActive.Set(float64(len(w.set.Active())))
	log.Printf("rules reloaded: %d rules from %s", len(rules), w.dir)
}

func isRuleFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yml" || ext == ".yaml"
}
