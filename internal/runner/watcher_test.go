package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dskow/okey-devtools/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForFirstOutput(t *testing.T, w *OutputWatcher, name string) time.Duration {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d, ok := w.FirstOutput(name); ok {
			return d
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no output observed for %s", name)
	return 0
}

func TestOutputWatcher_RecordsFirstWrite(t *testing.T) {
	w, err := NewOutputWatcher(quietLogger())
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(t.TempDir(), "server_auto.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	started := time.Now()
	if err := w.Track("server", path, started); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if _, ok := w.FirstOutput("server"); ok {
		t.Fatal("expected no output before the first write")
	}

	if _, err := f.WriteString("booting\n"); err != nil {
		t.Fatal(err)
	}

	d := waitForFirstOutput(t, w, "server")
	if d < 0 || d > 5*time.Second {
		t.Errorf("unexpected first output delay %v", d)
	}
}

func TestOutputWatcher_ExistingContentCounts(t *testing.T) {
	w, err := NewOutputWatcher(quietLogger())
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(t.TempDir(), "client1_auto.log")
	if err := os.WriteFile(path, []byte("already here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := w.Track("host", path, time.Now()); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if _, ok := w.FirstOutput("host"); !ok {
		t.Error("expected output written before tracking to count")
	}
}

func TestOutputWatcher_IgnoresUntrackedFiles(t *testing.T) {
	w, err := NewOutputWatcher(quietLogger())
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Stop()

	dir := t.TempDir()
	tracked := filepath.Join(dir, "client2_auto.log")
	if err := os.WriteFile(tracked, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Track("joiner", tracked, time.Now()); err != nil {
		t.Fatalf("Track: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.log"), []byte("noise\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, ok := w.FirstOutput("joiner"); ok {
		t.Error("writes to other files must not count")
	}
	if _, ok := w.FirstOutput("unknown"); ok {
		t.Error("unknown instance must report no output")
	}
}

func TestOutputWatcher_MissingDirectory(t *testing.T) {
	w, err := NewOutputWatcher(quietLogger())
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Stop()

	if err := w.Track("server", filepath.Join(t.TempDir(), "gone", "x.log"), time.Now()); err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestRun_WithWatcher(t *testing.T) {
	w, err := NewOutputWatcher(quietLogger())
	if err != nil {
		t.Fatalf("NewOutputWatcher: %v", err)
	}
	defer w.Stop()

	cfg := config.Default().Runner
	cfg.LogDir = t.TempDir()
	for i := range cfg.Instances {
		cfg.Instances[i].Delay = 0
	}

	rec := &recorder{}
	launcher := launcherFunc(func(spec LaunchSpec) {
		os.WriteFile(spec.LogPath, nil, 0o644)
	}, rec)
	r := New(cfg, launcher, w, quietLogger())
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		// Every instance writes during its wait.
		last := rec.specs[len(rec.specs)-1]
		f, err := os.OpenFile(last.LogPath, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		f.WriteString(last.Name + " ready\n")
		f.Close()
		waitForFirstOutput(t, w, last.Name)
		return nil
	}

	reports := r.Run(context.Background())

	for _, rep := range reports {
		if rep.Bytes == 0 {
			t.Errorf("%s: expected bytes to be counted", rep.Name)
		}
		if rep.FirstOutput < 0 {
			t.Errorf("%s: negative first output %v", rep.Name, rep.FirstOutput)
		}
		if _, ok := w.FirstOutput(rep.Name); !ok {
			t.Errorf("%s: expected first output to be recorded", rep.Name)
		}
	}
}
