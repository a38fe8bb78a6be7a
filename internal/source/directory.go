package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/zjrosen/rankreg/internal/filter"
	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/metrics"
	"github.com/zjrosen/rankreg/internal/rankedset"
	"github.com/zjrosen/rankreg/internal/watch"
	"github.com/zjrosen/rankreg/internal/watcher"
)

// Config describes one descriptor directory.
type Config struct {
	Name     string
	Dir      string
	Debounce time.Duration
	// PreferNative evaluates filters inside the set. Otherwise they run as a
	// guarded post-filter, so a failing filter matches nothing.
	PreferNative bool
	Metrics      metrics.Recorder
}

type entry struct {
	raw []byte
	h   *handle.Handle[*Descriptor]
}

// Directory publishes the descriptors found in a directory. The directory
// is watched only while it has subscribers; lookups without subscribers
// resync on demand.
type Directory struct {
	cfg     Config
	set     *rankedset.Set[*Descriptor]
	filters *filter.Cache
	ref     *watch.Refcounted

	syncMu  sync.Mutex
	entries map[string]*entry // by file name

	watchMu sync.Mutex
	watcher *watcher.Watcher
	stop    chan struct{}
}

// NewDirectory creates a directory publisher. Nothing is read until the
// first subscription or lookup.
func NewDirectory(cfg Config) (*Directory, error) {
	if cfg.Dir == "" {
		return nil, errors.New("directory source: dir is required")
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = watcher.DefaultConfig(cfg.Dir).DebounceDur
	}
	opts := []rankedset.Option{rankedset.WithName(cfg.Name)}
	if cfg.Metrics != nil {
		opts = append(opts, rankedset.WithMetrics(cfg.Metrics))
	}

	d := &Directory{
		cfg:     cfg,
		set:     rankedset.New[*Descriptor](opts...),
		filters: filter.NewCache(0),
		entries: make(map[string]*entry),
	}
	d.ref = watch.NewRefcounted("directory "+cfg.Name, watch.OpenerFuncs{
		OnOpen:  d.open,
		OnClose: d.close,
	})
	return d, nil
}

// Name returns the source name.
func (d *Directory) Name() string {
	return d.cfg.Name
}

// Set returns the ranked set the descriptors are published into.
func (d *Directory) Set() *rankedset.Set[*Descriptor] {
	return d.set
}

// Sequence returns the identity sequence of the underlying set.
func (d *Directory) Sequence() *handle.Sequence {
	return d.set.Sequence()
}

// Insert writes the descriptor held by h into the directory and publishes h.
// The file is named after the descriptor unless it already names one.
func (d *Directory) Insert(h *handle.Handle[*Descriptor]) error {
	desc, err := h.Get()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", d.cfg.Name, err)
	}
	defer h.Unget()
	if desc.File == "" {
		desc.File = desc.Name + ".yaml"
	}
	if !watcher.IsDescriptor(desc.File) {
		return fmt.Errorf("insert into %s: %q is not a descriptor file name", d.cfg.Name, desc.File)
	}
	data, err := desc.Marshal()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", d.cfg.Name, err)
	}

	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	if _, exists := d.entries[desc.File]; exists {
		return fmt.Errorf("insert into %s: descriptor %s already published", d.cfg.Name, desc.File)
	}
	if err := os.WriteFile(filepath.Join(d.cfg.Dir, desc.File), data, 0o600); err != nil {
		return fmt.Errorf("insert into %s: %w", d.cfg.Name, err)
	}
	if err := d.set.Insert(h); err != nil {
		_ = os.Remove(filepath.Join(d.cfg.Dir, desc.File))
		return err
	}
	d.entries[desc.File] = &entry{raw: data, h: h}
	log.Debug(log.CatSource, "descriptor inserted", "source", d.cfg.Name, "file", desc.File, "id", h.ID())
	return nil
}

// Filter compiles a query. With PreferNative the compiled query is cached
// and reused across calls.
func (d *Directory) Filter(query string) handle.Filter {
	if d.cfg.PreferNative {
		return d.filters.Lenient(query)
	}
	return filter.Lenient(query)
}

// Sync reconciles the set with the directory contents. Unreadable or
// malformed files are logged and treated as absent.
func (d *Directory) Sync() error {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	files, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read source %s: %w", d.cfg.Name, err)
	}

	seen := make(map[string]bool, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !watcher.IsDescriptor(f.Name()) {
			continue
		}
		names = append(names, f.Name())
	}
	slices.Sort(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(d.cfg.Dir, name)) //nolint:gosec // G304: files under the configured source dir
		if err != nil {
			log.Warn(log.CatSource, "unreadable descriptor", "source", d.cfg.Name, "file", name, "error", err)
			continue
		}
		desc, err := ParseDescriptor(name, data)
		if err != nil {
			log.Warn(log.CatSource, "malformed descriptor", "source", d.cfg.Name, "file", name, "error", err)
			continue
		}
		seen[name] = true
		d.apply(name, data, desc)
	}

	for name, e := range d.entries {
		if seen[name] {
			continue
		}
		e.h.Withdraw()
		delete(d.entries, name)
		log.Debug(log.CatSource, "descriptor withdrawn", "source", d.cfg.Name, "file", name)
	}
	return nil
}

func (d *Directory) apply(name string, data []byte, desc *Descriptor) {
	attrs := desc.HandleAttributes(d.cfg.Name)

	e, ok := d.entries[name]
	if !ok {
		h := d.set.Export(desc, attrs)
		d.entries[name] = &entry{raw: data, h: h}
		log.Debug(log.CatSource, "descriptor added", "source", d.cfg.Name, "file", name, "id", h.ID())
		return
	}
	if bytes.Equal(e.raw, data) {
		return
	}
	e.raw = data
	e.h.Put(desc)
	e.h.SetAttributes(attrs)
	log.Debug(log.CatSource, "descriptor modified", "source", d.cfg.Name, "file", name, "id", e.h.ID())
}

// Subscribe registers w, starting to watch the directory if this is the
// first subscriber.
func (d *Directory) Subscribe(ctx context.Context, f handle.Filter, w watch.Watcher[*Descriptor]) (*watch.Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.ref.Acquire(); err != nil {
		return nil, err
	}

	inner, err := d.set.Subscribe(ctx, d.prepare(f), w)
	if err != nil {
		d.ref.Release()
		return nil, err
	}

	sub := watch.NewSubscription(func() {
		inner.Cancel()
		d.ref.Release()
	})
	stop := context.AfterFunc(ctx, sub.Cancel)
	sub.SetCancel(func() {
		stop()
		inner.Cancel()
		d.ref.Release()
	})
	return sub, nil
}

// Unsubscribe removes a subscription, closing the watch after the last one.
func (d *Directory) Unsubscribe(sub *watch.Subscription) {
	if sub != nil {
		sub.Cancel()
	}
}

// Subscribers returns the number of open subscriptions.
func (d *Directory) Subscribers() int {
	return d.ref.Count()
}

// MaxRank returns the highest rank currently published.
func (d *Directory) MaxRank() int {
	return d.set.MaxRank()
}

// Iterate returns an iterator over the published descriptors. Without
// subscribers the directory is read first.
func (d *Directory) Iterate(f handle.Filter) *rankedset.Iterator[*Descriptor] {
	if d.ref.Count() == 0 {
		if err := d.Sync(); err != nil {
			log.Warn(log.CatSource, "resync failed", "source", d.cfg.Name, "error", err)
		}
	}
	return d.set.Iterate(d.prepare(f))
}

// All returns the published descriptors matching f in rank order.
func (d *Directory) All(f handle.Filter) iter.Seq[*handle.Handle[*Descriptor]] {
	return d.Iterate(f).All()
}

// Contains reports whether h is currently published by this directory.
func (d *Directory) Contains(h *handle.Handle[*Descriptor]) bool {
	return d.set.Contains(h)
}

func (d *Directory) prepare(f handle.Filter) handle.Filter {
	if f == nil || d.cfg.PreferNative {
		return f
	}
	return guarded{name: d.cfg.Name, f: f}
}

// guarded isolates a filter that panics.
type guarded struct {
	name string
	f    handle.Filter
}

func (g guarded) Matches(attrs handle.Attributes) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Recovered(log.CatFilter, "filter panicked, treating as no match", r, "source", g.name)
			ok = false
		}
	}()
	return g.f.Matches(attrs.Clone())
}

func (d *Directory) open() error {
	if err := d.Sync(); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{Dir: d.cfg.Dir, DebounceDur: d.cfg.Debounce})
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}

	stop := make(chan struct{})
	d.watchMu.Lock()
	d.watcher, d.stop = w, stop
	d.watchMu.Unlock()

	go d.run(changes, stop)
	return nil
}

func (d *Directory) run(changes <-chan struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			if err := d.Sync(); err != nil {
				log.Warn(log.CatSource, "resync failed", "source", d.cfg.Name, "error", err)
			}
		}
	}
}

// close stops watching without waiting for an in-flight resync, so it may be
// reached from a watcher callback.
func (d *Directory) close() error {
	d.watchMu.Lock()
	w, stop := d.watcher, d.stop
	d.watcher, d.stop = nil, nil
	d.watchMu.Unlock()

	if stop != nil {
		close(stop)
	}
	if w != nil {
		return w.Stop()
	}
	return nil
}

var _ watch.Publisher[*Descriptor] = (*Directory)(nil)
