package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestContractForEvent(t *testing.T) {
	cases := []struct {
		ev   fsnotify.Event
		id   string
		want bool
	}{
		{fsnotify.Event{Name: "/data/corpora/safeway_2022.json", Op: fsnotify.Write}, "safeway_2022", true},
		{fsnotify.Event{Name: "/data/manifests/safeway_2022.yaml", Op: fsnotify.Create}, "safeway_2022", true},
		{fsnotify.Event{Name: "/data/manifests/kroger.yml", Op: fsnotify.Rename}, "kroger", true},
		{fsnotify.Event{Name: "/data/corpora/.upload-123", Op: fsnotify.Create}, "", false},
		{fsnotify.Event{Name: "/data/corpora/notes.txt", Op: fsnotify.Write}, "", false},
		{fsnotify.Event{Name: "/data/corpora/safeway_2022.json", Op: fsnotify.Chmod}, "", false},
	}
	for _, tc := range cases {
		id, ok := ContractForEvent(tc.ev)
		if ok != tc.want || id != tc.id {
			t.Fatalf("ContractForEvent(%v) = %q, %v", tc.ev, id, ok)
		}
	}
}

func TestRunDebouncesPerContract(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	calls := map[string]int{}
	done := make(chan struct{}, 4)
	handler := func(_ context.Context, id string) error {
		mu.Lock()
		calls[id]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New([]string{dir}, handler, 100*time.Millisecond, nil)
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "safeway_2022.json")
	for i := range 3 {
		if err := os.WriteFile(path, []byte{byte('0' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls["safeway_2022"] != 1 {
		t.Fatalf("expected one debounced call, got %v", calls)
	}
}
