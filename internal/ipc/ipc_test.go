package ipc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"omnistream/internal/capture"
	"omnistream/internal/daemon"
	"omnistream/internal/engine"
	"omnistream/internal/ipc"
	"omnistream/internal/store"
	"omnistream/internal/testsupport"
)

type offlineChecker struct{}

func (offlineChecker) IsLive(context.Context, string) (bool, error) { return false, nil }
func (offlineChecker) ProbeTitle(context.Context, string) string    { return "" }

type noopLauncher struct{}

func (noopLauncher) Start(string, string, string) (capture.Process, error) {
	return noopProcess{}, nil
}

type noopProcess struct{}

func (noopProcess) Wait() error { return nil }
func (noopProcess) Kill() error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, []string, store.UploadConfig, string) error {
	return nil
}

// newClient builds a daemon behind a socket. Seed functions run before the
// engine loads the store, so seeded records are visible to the daemon.
func newClient(t *testing.T, seeds ...func(t *testing.T, s *store.Store)) (*ipc.Client, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	s := testsupport.MustOpenStore(t, cfg)
	for _, seed := range seeds {
		seed(t, s)
	}

	eng, err := engine.New(engine.Options{
		Store:           s,
		Checker:         offlineChecker{},
		Launcher:        noopLauncher{},
		Publisher:       noopPublisher{},
		RecordingsDir:   cfg.Paths.RecordingsDir,
		MonitorInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	d, err := daemon.New(cfg, s, eng, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)

	srv, err := ipc.NewServer(context.Background(), cfg.Paths.SocketPath, d, nil)
	if err != nil {
		t.Fatalf("new ipc server: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestStatusOverIPC(t *testing.T) {
	client, _ := newClient(t)

	resp, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Status.Running {
		t.Error("daemon must report running")
	}
	if resp.Status.DatabasePath == "" {
		t.Error("database path missing")
	}
}

func TestSourceAndProfileLifecycleOverIPC(t *testing.T) {
	client, _ := newClient(t)

	profileResp, err := client.ProfileSave(ipc.Profile{Name: "main"})
	if err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if profileResp.Profile.ID == "" {
		t.Fatal("profile id missing")
	}
	if profileResp.Profile.Config.Tid != store.DefaultTid {
		t.Errorf("profile defaults not applied: %+v", profileResp.Profile.Config)
	}

	sourceResp, err := client.SourceSave(ipc.Source{
		Name:             "alice",
		URL:              "https://twitch.tv/alice",
		LinkedProfileIDs: []string{profileResp.Profile.ID},
	})
	if err != nil {
		t.Fatalf("save source: %v", err)
	}
	if sourceResp.Source.ID == "" {
		t.Fatal("source id missing")
	}

	listResp, err := client.SourceList()
	if err != nil {
		t.Fatalf("list sources: %v", err)
	}
	if len(listResp.Sources) != 1 || listResp.Sources[0].State != "monitoring" {
		t.Errorf("unexpected sources: %+v", listResp.Sources)
	}

	if _, err := client.SourceRemove(sourceResp.Source.ID); err != nil {
		t.Fatalf("remove source: %v", err)
	}
	if _, err := client.ProfileRemove(profileResp.Profile.ID); err != nil {
		t.Fatalf("remove profile: %v", err)
	}
	if _, err := client.SourceRemove("missing"); err == nil {
		t.Error("expected error removing missing source")
	}
}

func TestSettingsOverIPC(t *testing.T) {
	client, _ := newClient(t)

	get, err := client.SettingsGet()
	if err != nil {
		t.Fatalf("settings get: %v", err)
	}
	if get.Settings.SegmentTimeSec != 3600 {
		t.Errorf("default segment time: %d", get.Settings.SegmentTimeSec)
	}

	want := get.Settings
	want.Quality.Twitch = "720p"
	set, err := client.SettingsSet(ipc.SettingsSetRequest{Settings: want})
	if err != nil {
		t.Fatalf("settings set: %v", err)
	}
	if set.Settings.Quality.Twitch != "720p" {
		t.Errorf("settings not applied: %+v", set.Settings)
	}
}

func TestTaskListAndStopOverIPC(t *testing.T) {
	client, s := newClient(t, func(t *testing.T, s *store.Store) {
		task := &store.Task{ID: "t1", Name: "alice", URL: "https://twitch.tv/alice", Status: store.Completed}
		if err := s.SaveTask(context.Background(), task); err != nil {
			t.Fatalf("save task: %v", err)
		}
	})

	listResp, err := client.TaskList()
	if err != nil {
		t.Fatalf("task list: %v", err)
	}
	if len(listResp.Tasks) != 1 || listResp.Tasks[0].Status != "Completed" {
		t.Errorf("unexpected tasks: %+v", listResp.Tasks)
	}

	if _, err := client.TaskStop("t1"); err != nil {
		t.Fatalf("task stop: %v", err)
	}
	got, err := s.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != store.Idle {
		t.Errorf("stop must idle a finished task: %+v", got.Status)
	}

	if _, err := client.TaskRemove("t1"); err != nil {
		t.Fatalf("task remove: %v", err)
	}
	if _, err := client.TaskStop("missing"); err == nil {
		t.Error("expected error stopping missing task")
	}
}

func TestTaskStartOverIPC(t *testing.T) {
	client, s := newClient(t)

	resp, err := client.TaskStart("alice", "https://twitch.tv/alice")
	if err != nil {
		t.Fatalf("task start: %v", err)
	}
	if resp.TaskID == "" {
		t.Fatal("task id missing")
	}
	// The noop launcher exits without writing a file and the checker reads
	// offline, so the capture ends in a terminal error.
	deadline := time.Now().Add(5 * time.Second)
	for {
		task, err := s.GetTask(context.Background(), resp.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task != nil && task.Status.Code == store.CodeError {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never reached a terminal error, last %+v", task)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishOverIPC(t *testing.T) {
	client, s := newClient(t)

	if _, err := client.ProfileSave(ipc.Profile{ID: "p1", Name: "main"}); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.mp4"), 16)

	resp, err := client.Publish(dir, []string{"p1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if resp.TaskID == "" {
		t.Fatal("task id missing")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		task, err := s.GetTask(context.Background(), resp.TaskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("manual task never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
