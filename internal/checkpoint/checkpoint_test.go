package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	pos := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	if err := store.Save("trades", pos); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok := store.Load("trades")
	if !ok {
		t.Fatal("checkpoint not found after save")
	}
	if !got.Equal(pos) {
		t.Errorf("loaded %s, want %s", got, pos)
	}
}

func TestLoadAbsentStream(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok := store.Load("never-saved"); ok {
		t.Fatal("expected absent checkpoint")
	}
}

func TestLoadCorruptFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path := filepath.Join(dir, "checkpoint_trades.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, ok := store.Load("trades"); ok {
		t.Fatal("corrupt checkpoint should be treated as absent")
	}
}

func TestStreamsAreIsolated(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	if err := store.Save("trades", a); err != nil {
		t.Fatalf("save trades: %v", err)
	}
	if err := store.Save("candles_1m", b); err != nil {
		t.Fatalf("save candles: %v", err)
	}

	got, _ := store.Load("trades")
	if !got.Equal(a) {
		t.Errorf("trades checkpoint clobbered: %s", got)
	}
	got, _ = store.Load("candles_1m")
	if !got.Equal(b) {
		t.Errorf("candles checkpoint clobbered: %s", got)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)
	if err := store.Save("candles_5m", first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save("candles_5m", second); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := store.Load("candles_5m")
	if !got.Equal(second) {
		t.Errorf("loaded %s, want %s", got, second)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("stray temp file %s", e.Name())
		}
	}
}

func TestNewStoreUnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission bits are not enforced")
	}
	dir := t.TempDir()
	readonly := filepath.Join(dir, "ro")
	if err := os.Mkdir(readonly, 0o555); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := NewStore(filepath.Join(readonly, "checkpoints")); err == nil {
		t.Fatal("expected error for unwritable directory")
	}
}
