package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	makerapp "github.com/predikt/arb-agent/business/maker/app"
)

type fakeMaker struct {
	passes atomic.Int64
}

func (f *fakeMaker) Pass(_ context.Context) error {
	f.passes.Add(1)
	return nil
}

func (f *fakeMaker) MetricsSnapshot() makerapp.Snapshot {
	return makerapp.Snapshot{PassesRun: f.passes.Load()}
}

func TestRun_TicksMakerAndDrainsOnCancel(t *testing.T) {
	maker := &fakeMaker{}
	sup := New(maker, nil, nil, Config{
		MakerInterval:        5 * time.Millisecond,
		MetricsFlushInterval: time.Hour,
		ShutdownGrace:        time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for maker.passes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("maker loop never ticked")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not drain after cancellation")
	}
}

func TestRun_FlushesMakerMetricsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mm-metrics.json")

	maker := &fakeMaker{}
	maker.passes.Store(7)
	sup := New(maker, nil, nil, Config{
		MakerInterval:        time.Hour,
		MetricsFlushInterval: time.Hour,
		MakerMetricsPath:     path,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sup.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	var snap makerapp.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("metrics file not valid JSON: %v", err)
	}
	if snap.PassesRun != 7 {
		t.Fatalf("want 7 passes in snapshot, got %d", snap.PassesRun)
	}
	if snap.Ts == 0 {
		t.Fatal("snapshot must be stamped")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("atomic write must leave no temp files, dir has %d entries", len(entries))
	}
}

func TestWriteAtomicJSON_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := writeAtomicJSON(path, map[string]int{"version": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file missing: %v", err)
	}
}
