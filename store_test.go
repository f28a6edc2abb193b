package detect

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeRule(t *testing.T, root string, rel string, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeRule(t, root, "linux/auth/ssh_brute.yml", `
title: SSH Brute Force
id: ssh-brute
level: high
detection:
  selection:
    message|contains: "Failed password"
`)
	writeRule(t, root, "linux/auth/su_root.yaml", `
title: Root Session Opened
id: su-root
level: low
detection:
  selection:
    message|contains: "session opened for user root"
`)
	writeRule(t, root, "network/ips_critical.yml", `
title: Critical IPS Alert
id: ips-critical
level: critical
detection:
  selection:
    ips_alert_info.severity: critical
`)
	writeRule(t, root, "network/disabled_noise.yml", `
title: Noisy Port Scan
id: port-scan
enabled: false
detection:
  keywords:
    - "portscan"
`)
	// broken on purpose, must be skipped not fatal
	writeRule(t, root, "broken/bad_syntax.yml", "title: broken\ndetection: [\n")
	// non-rule files are ignored entirely
	writeRule(t, root, "README.md", "not a rule")
	return root
}

func testStore(t *testing.T) (*Store, LoadResult) {
	t.Helper()
	store, err := NewStore(StoreConfig{
		Directory: []string{testCorpus(t)},
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	return store, res
}

func TestStoreLoad(t *testing.T) {
	store, res := testStore(t)
	if res.Total != 5 {
		t.Fatalf("total: %d", res.Total)
	}
	if res.Loaded != 4 {
		t.Fatalf("loaded: %d", res.Loaded)
	}
	if res.Failed != 1 {
		t.Fatalf("failed: %d", res.Failed)
	}
	if store.Len() != 4 {
		t.Fatalf("len: %d", store.Len())
	}
	cats := store.Categories()
	want := []string{"linux/auth", "network"}
	if len(cats) != len(want) {
		t.Fatalf("categories: %v", cats)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Fatalf("categories: %v", cats)
		}
	}
}

func TestStoreLoadDuplicate(t *testing.T) {
	root := t.TempDir()
	writeRule(t, root, "a/dup.yml", `
title: First Seen
id: dup-id
detection:
  keywords:
    - first
`)
	writeRule(t, root, "b/dup.yml", `
title: Second Seen
id: dup-id
detection:
  keywords:
    - second
`)
	store, err := NewStore(StoreConfig{Directory: []string{root}, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	res, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if res.Duplicate != 1 || res.Loaded != 1 {
		t.Fatalf("duplicate handling: %+v", res)
	}
	rule, err := store.Get("dup-id")
	if err != nil {
		t.Fatal(err)
	}
	if rule.Title != "First Seen" {
		t.Fatalf("first seen rule should win, got %s", rule.Title)
	}
}

func TestStoreLoadAllBroken(t *testing.T) {
	root := t.TempDir()
	writeRule(t, root, "bad.yml", "title: broken\ndetection: [\n")
	store, err := NewStore(StoreConfig{Directory: []string{root}, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil {
		t.Fatal("corpus with zero loadable rules should error")
	}
}

func TestStoreLoadEmptyDir(t *testing.T) {
	store, err := NewStore(StoreConfig{Directory: []string{t.TempDir()}, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err != ErrNoRulesLoaded {
		t.Fatalf("directory without rule files: %v", err)
	}
}

func TestStoreConfigValidate(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Fatal("missing directory should error")
	}
	if _, err := NewStore(StoreConfig{Directory: []string{"/no/such/dir"}}); err == nil {
		t.Fatal("nonexistent directory should error")
	}
}

func TestStoreListFilter(t *testing.T) {
	store, _ := testStore(t)
	if got := len(store.List(Filter{})); got != 4 {
		t.Fatalf("unfiltered list: %d", got)
	}
	if got := len(store.List(Filter{Category: "linux/auth"})); got != 2 {
		t.Fatalf("category filter: %d", got)
	}
	enabled := true
	if got := len(store.List(Filter{Enabled: &enabled})); got != 3 {
		t.Fatalf("enabled filter: %d", got)
	}
	disabled := false
	listed := store.List(Filter{Enabled: &disabled})
	if len(listed) != 1 || listed[0].ID != "port-scan" {
		t.Fatalf("disabled filter: %+v", listed)
	}
}

func TestStoreToggle(t *testing.T) {
	store, _ := testStore(t)
	rule, err := store.Toggle("ssh-brute", false)
	if err != nil {
		t.Fatal(err)
	}
	if rule.Enabled {
		t.Fatal("toggle return should reflect new state")
	}
	got, err := store.Get("ssh-brute")
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Fatal("toggle did not persist")
	}
	if _, err := store.Toggle("no-such-rule", true); err == nil {
		t.Fatal("toggling unknown id should error")
	}
}

func TestStoreBulkToggle(t *testing.T) {
	store, _ := testStore(t)
	if n := store.BulkToggle(false, ""); n != 4 {
		t.Fatalf("bulk disable count: %d", n)
	}
	if got := len(store.Enabled()); got != 0 {
		t.Fatalf("enabled after bulk disable: %d", got)
	}
	if n := store.BulkToggle(true, "linux/auth"); n != 2 {
		t.Fatalf("bulk enable count: %d", n)
	}
	for _, rule := range store.List(Filter{}) {
		want := rule.Category == "linux/auth"
		if rule.Enabled != want {
			t.Fatalf("rule %s enabled=%v after category enable", rule.ID, rule.Enabled)
		}
	}
}

// a reload resets enabled state to what the definitions declare
func TestStoreReloadResetsToggles(t *testing.T) {
	store, _ := testStore(t)
	if _, err := store.Toggle("ssh-brute", false); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}
	rule, err := store.Get("ssh-brute")
	if err != nil {
		t.Fatal(err)
	}
	if !rule.Enabled {
		t.Fatal("reload should restore declared enabled state")
	}
	noise, err := store.Get("port-scan")
	if err != nil {
		t.Fatal(err)
	}
	if noise.Enabled {
		t.Fatal("reload should keep declared enabled: false")
	}
}

// a snapshot taken before a reload keeps referencing the old corpus,
// mutations of the new corpus do not reach it
func TestStoreEnabledSnapshot(t *testing.T) {
	store, _ := testStore(t)
	snapshot := store.Enabled()
	if len(snapshot) != 3 {
		t.Fatalf("enabled: %d", len(snapshot))
	}
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Toggle("ssh-brute", false); err != nil {
		t.Fatal(err)
	}
	for _, rule := range snapshot {
		if rule.ID == "ssh-brute" && !rule.Enabled {
			t.Fatal("toggle on the reloaded corpus reached the old snapshot")
		}
	}
	if got := len(store.Enabled()); got != 2 {
		t.Fatalf("fresh snapshot after toggle: %d", got)
	}
}

// readers never observe a half-updated corpus, mutations are
// serialized. Meant to run under the race detector.
func TestStoreConcurrentAccess(t *testing.T) {
	store, _ := testStore(t)
	engine, err := NewEngine(EngineConfig{Store: store, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ev := eventFromJSON(t, `{"message": "Failed password for root", "program": "sshd"}`)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				engine.EvalEvent(ev)
				for _, rule := range store.Enabled() {
					_ = rule.ID
				}
				store.List(Filter{Category: "linux/auth"})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			if _, err := store.Load(); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			store.Toggle("ssh-brute", j%2 == 0)
			store.BulkToggle(j%2 == 1, "network")
		}
	}()
	wg.Wait()

	// the final reload leaves a consistent corpus
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 4 {
		t.Fatalf("corpus after concurrent access: %d", store.Len())
	}
	if got := len(store.Enabled()); got != 3 {
		t.Fatalf("enabled after final reload: %d", got)
	}
}
