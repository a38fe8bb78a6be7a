package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/rankreg/internal/federation"
	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/watch"
)

func writeDescriptor(t *testing.T, dir, file, name string, ranking int, extra string) {
	t.Helper()
	body := fmt.Sprintf("name: %s\nendpoint: tcp://%s:1\nranking: %d\n%s", name, name, ranking, extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0644))
}

func newDirectory(t *testing.T, dir string, native bool) *Directory {
	t.Helper()
	d, err := NewDirectory(Config{Name: "local", Dir: dir, Debounce: 20 * time.Millisecond, PreferNative: native})
	require.NoError(t, err)
	return d
}

func names(d *Directory, f handle.Filter) []string {
	var out []string
	for h := range d.Iterate(f).All() {
		v, err := h.Get()
		if err != nil {
			continue
		}
		out = append(out, v.Name)
		h.Unget()
	}
	return out
}

// === Unit Tests: descriptors ===

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor("db.yaml", []byte(`
name: db
endpoint: postgres://db:5432
version: 1.4.2
ranking: 10
attributes:
  region: eu
  name: ignored
  tags: [fast, primary]
`))
	require.NoError(t, err)
	assert.Equal(t, "db", d.Name)
	assert.Equal(t, "db.yaml", d.File)

	attrs := d.HandleAttributes("local")
	assert.Equal(t, "db", attrs[AttrName], "well known keys win over free-form attributes")
	assert.Equal(t, 10, handle.RankOf(attrs))
	assert.Equal(t, "eu", attrs["region"])
	assert.Equal(t, "1.4.2", attrs[AttrVersion])
	assert.Equal(t, "local", attrs[AttrSource])
}

func TestParseDescriptor_Errors(t *testing.T) {
	_, err := ParseDescriptor("bad.yaml", []byte("name: [unclosed"))
	require.Error(t, err)

	_, err = ParseDescriptor("anon.yaml", []byte("endpoint: x"))
	require.ErrorContains(t, err, "missing name")
}

// === Unit Tests: Directory ===

func TestNewDirectory_RequiresDir(t *testing.T) {
	_, err := NewDirectory(Config{})
	require.Error(t, err)
}

func TestDirectory_IterateReadsWithoutSubscribers(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", "low", 1, "")
	writeDescriptor(t, dir, "b.yaml", "high", 9, "")
	writeDescriptor(t, dir, "c.yml", "mid", 5, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	d := newDirectory(t, dir, true)
	assert.Equal(t, []string{"high", "mid", "low"}, names(d, nil))
	assert.Equal(t, 9, d.MaxRank())

	require.NoError(t, os.Remove(filepath.Join(dir, "b.yaml")))
	assert.Equal(t, []string{"mid", "low"}, names(d, nil))
}

func TestDirectory_MalformedDescriptorIsTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "db.yaml", "db", 1, "")
	d := newDirectory(t, dir, true)
	require.NoError(t, d.Sync())
	require.Equal(t, 1, d.Set().Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "db.yaml"), []byte("name: [broken"), 0644))
	require.NoError(t, d.Sync())
	assert.Equal(t, 0, d.Set().Len())
}

func TestDirectory_SyncMissingDir(t *testing.T) {
	d := newDirectory(t, filepath.Join(t.TempDir(), "missing"), true)
	require.Error(t, d.Sync())
	assert.Empty(t, names(d, nil))
}

func TestDirectory_UnchangedFileIsNotModified(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "db.yaml", "db", 1, "")
	d := newDirectory(t, dir, true)
	require.NoError(t, d.Sync())

	c := watch.NewCollector[*Descriptor]()
	_, err := d.Set().Subscribe(context.Background(), nil, c)
	require.NoError(t, err)

	require.NoError(t, d.Sync())
	assert.Equal(t, []watch.EventKind{watch.EventAdd}, c.Kinds())

	writeDescriptor(t, dir, "db.yaml", "db", 4, "")
	require.NoError(t, d.Sync())
	assert.Equal(t, []watch.EventKind{watch.EventAdd, watch.EventModify}, c.Kinds())
	assert.Equal(t, 4, d.MaxRank())
}

func TestDirectory_SubscribeWatchesUntilLastUnsubscribe(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", "a", 1, "")
	d := newDirectory(t, dir, true)

	c := watch.NewCollector[*Descriptor]()
	sub1, err := d.Subscribe(context.Background(), nil, c)
	require.NoError(t, err)
	sub2, err := d.Subscribe(context.Background(), nil, watch.NewCollector[*Descriptor]())
	require.NoError(t, err)
	require.Equal(t, 2, d.Subscribers())
	require.Equal(t, []watch.EventKind{watch.EventAdd}, c.Kinds(), "existing descriptors are replayed")

	writeDescriptor(t, dir, "b.yaml", "b", 2, "")
	require.Eventually(t, func() bool { return len(c.Kinds()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, watch.EventAdd, c.Kinds()[1])

	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	require.Eventually(t, func() bool { return len(c.Kinds()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, watch.EventRemove, c.Kinds()[2])

	d.Unsubscribe(sub1)
	require.Equal(t, 1, d.Subscribers())
	d.Unsubscribe(sub2)
	d.Unsubscribe(sub2)
	require.Equal(t, 0, d.Subscribers())

	d.watchMu.Lock()
	assert.Nil(t, d.watcher, "watch closes with the last subscriber")
	d.watchMu.Unlock()
}

func TestDirectory_SubscribeReleasesOnContextCancel(t *testing.T) {
	d := newDirectory(t, t.TempDir(), true)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := d.Subscribe(ctx, nil, watch.NewCollector[*Descriptor]())
	require.NoError(t, err)
	require.Equal(t, 1, d.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return d.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDirectory_SubscribeFailsOnMissingDir(t *testing.T) {
	d := newDirectory(t, filepath.Join(t.TempDir(), "missing"), true)

	_, err := d.Subscribe(context.Background(), nil, watch.NewCollector[*Descriptor]())
	require.Error(t, err)
	assert.Equal(t, 0, d.Subscribers())
}

// === Unit Tests: filters ===

func TestDirectory_FilterQueries(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "db.yaml", "db", 10, "version: 1.4.2\nattributes:\n  region: eu\n")
	writeDescriptor(t, dir, "cache.yaml", "cache", 5, "version: 2.0.0\nattributes:\n  region: us\n")

	for _, native := range []bool{true, false} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			d := newDirectory(t, dir, native)
			assert.Equal(t, []string{"db"}, names(d, d.Filter("region = eu")))
			assert.Equal(t, []string{"cache"}, names(d, d.Filter("version >= 2.0.0")))
			assert.Empty(t, names(d, d.Filter("region = ")), "malformed filter matches nothing")
		})
	}
}

func TestDirectory_NativeFilterIsCached(t *testing.T) {
	d := newDirectory(t, t.TempDir(), true)
	require.Same(t, d.Filter("name = db"), d.Filter("name = db"))

	hits, _ := d.filters.Stats()
	assert.Equal(t, uint64(1), hits)
}

func TestDirectory_PostFilterIsolatesPanics(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "db.yaml", "db", 1, "")
	boom := handle.FilterFunc(func(handle.Attributes) bool { panic("boom") })

	d := newDirectory(t, dir, false)
	assert.Empty(t, names(d, boom))
}

// === Integration: federation ===

func TestDirectory_AsChainSource(t *testing.T) {
	primary, secondary := t.TempDir(), t.TempDir()
	writeDescriptor(t, primary, "db.yaml", "db-primary", 5, "")
	writeDescriptor(t, secondary, "db.yaml", "db-secondary", 50, "")

	chain, err := federation.NewChain([]federation.Source[*Descriptor]{
		newDirectory(t, primary, true),
		newDirectory(t, secondary, true),
	}, federation.WithRankCeiling(1, 5))
	require.NoError(t, err)

	var got []string
	for h := range chain.Lookup(nil).All() {
		v, err := h.Get()
		require.NoError(t, err)
		got = append(got, v.Name)
		h.Unget()
	}
	assert.Equal(t, []string{"db-primary", "db-secondary"}, got, "ceiling keeps the secondary below the primary")
}

// === Unit Tests: insert ===

func TestDirectory_Insert_WritesDescriptorAndPublishes(t *testing.T) {
	dir := t.TempDir()
	d := newDirectory(t, dir, true)

	desc := &Descriptor{Name: "api", Endpoint: "http://api:80", Ranking: 3}
	h := handle.NewValue(d.Sequence().Next(), desc, desc.HandleAttributes(d.Name()))
	require.NoError(t, d.Insert(h))

	data, err := os.ReadFile(filepath.Join(dir, "api.yaml"))
	require.NoError(t, err)
	parsed, err := ParseDescriptor("api.yaml", data)
	require.NoError(t, err)
	assert.Equal(t, "http://api:80", parsed.Endpoint)
	assert.True(t, d.Contains(h))

	// The written file is already known, so a resync keeps the same handle.
	require.NoError(t, d.Sync())
	assert.True(t, d.Contains(h))
	assert.Equal(t, []string{"api"}, names(d, nil))

	dup := handle.NewValue(d.Sequence().Next(), &Descriptor{Name: "api"}, nil)
	require.Error(t, d.Insert(dup))
}

func TestDirectory_Insert_RejectsBadFileName(t *testing.T) {
	d := newDirectory(t, t.TempDir(), true)
	desc := &Descriptor{Name: "api", File: "api.txt"}
	h := handle.NewValue(d.Sequence().Next(), desc, nil)
	require.Error(t, d.Insert(h))
	assert.False(t, d.Contains(h))
}
