package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"omnistream/internal/capture"
	"omnistream/internal/store"
)

// fakeChecker answers liveness probes from a scripted sequence. Once the
// sequence runs out it keeps answering the last entry.
type fakeChecker struct {
	mu      sync.Mutex
	answers []bool
	err     error
	title   string
	calls   int
}

func (f *fakeChecker) IsLive(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if len(f.answers) == 0 {
		return false, nil
	}
	answer := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return answer, nil
}

func (f *fakeChecker) ProbeTitle(_ context.Context, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

func (f *fakeChecker) probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeProc struct {
	done   chan struct{}
	once   sync.Once
	killed atomic.Bool
	err    error
}

func newFakeProc() *fakeProc {
	return &fakeProc{done: make(chan struct{})}
}

func (p *fakeProc) Wait() error {
	<-p.done
	return p.err
}

func (p *fakeProc) Kill() error {
	p.once.Do(func() {
		p.killed.Store(true)
		p.err = errors.New("killed")
		close(p.done)
	})
	return nil
}

func (p *fakeProc) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// launchStep scripts one capture invocation: bytes written to the segment
// file and an optional auto-exit delay. exitAfter zero keeps the process
// running until killed or released by the test.
type launchStep struct {
	content   []byte
	exitAfter time.Duration
	startErr  error
}

type fakeLauncher struct {
	mu    sync.Mutex
	steps []launchStep
	procs []*fakeProc
	paths []string
}

func (f *fakeLauncher) Start(_ string, _ string, outputPath string) (capture.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	step := launchStep{exitAfter: time.Millisecond}
	if len(f.steps) > 0 {
		step = f.steps[0]
		f.steps = f.steps[1:]
	}
	if step.startErr != nil {
		return nil, step.startErr
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	if step.content != nil {
		if err := os.WriteFile(outputPath, step.content, 0o644); err != nil {
			return nil, err
		}
	}

	proc := newFakeProc()
	f.procs = append(f.procs, proc)
	f.paths = append(f.paths, outputPath)
	if step.exitAfter > 0 {
		time.AfterFunc(step.exitAfter, func() { proc.exit(nil) })
	}
	return proc, nil
}

func (f *fakeLauncher) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

type pubCall struct {
	files []string
	cfg   store.UploadConfig
	title string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []pubCall
	errs  map[int]error
}

func (f *fakePublisher) Publish(_ context.Context, files []string, cfg store.UploadConfig, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.calls)
	f.calls = append(f.calls, pubCall{files: append([]string(nil), files...), cfg: cfg, title: title})
	if f.errs != nil {
		return f.errs[idx]
	}
	return nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	engine    *Engine
	store     *store.Store
	checker   *fakeChecker
	launcher  *fakeLauncher
	publisher *fakePublisher
	dir       string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	s, err := store.OpenPath(filepath.Join(dir, "omnistream.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	checker := &fakeChecker{}
	launcher := &fakeLauncher{}
	publisher := &fakePublisher{}

	eng, err := New(Options{
		Store:                 s,
		Checker:               checker,
		Launcher:              launcher,
		Publisher:             publisher,
		RecordingsDir:         filepath.Join(dir, "recordings"),
		MonitorInterval:       time.Hour,
		SizePollInterval:      5 * time.Millisecond,
		RestartBackoff:        time.Millisecond,
		EmptySegmentThreshold: 3,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(eng.Close)

	return &testEnv{engine: eng, store: s, checker: checker, launcher: launcher, publisher: publisher, dir: dir}
}

func (env *testEnv) addSource(t *testing.T, source *store.Source) {
	t.Helper()
	if err := env.store.SaveSource(context.Background(), source); err != nil {
		t.Fatalf("save source: %v", err)
	}
}

func (env *testEnv) onlyTask(t *testing.T) *store.Task {
	t.Helper()
	tasks, err := env.store.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	return tasks[0]
}

func (env *testEnv) waitStatus(t *testing.T, want store.Status) *store.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last *store.Task
	for time.Now().Before(deadline) {
		tasks, err := env.store.ListTasks(context.Background())
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		for _, task := range tasks {
			if task.Status == want {
				return task
			}
			last = task
		}
		time.Sleep(5 * time.Millisecond)
	}
	if last != nil {
		t.Fatalf("no task reached %+v, last seen %+v", want, last.Status)
	}
	t.Fatalf("no task reached %+v, no tasks exist", want)
	return nil
}

func TestLiveSourceGetsCaptured(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false}
	env.checker.title = "night stream"
	env.launcher.steps = []launchStep{{content: []byte("video"), exitAfter: time.Millisecond}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())

	task := env.waitStatus(t, store.Completed)
	if task.Name != "alice" {
		t.Errorf("task name: %q", task.Name)
	}
	if env.publisher.callCount() != 0 {
		t.Error("no configs, nothing should publish")
	}

	// The segment landed under a per-source directory.
	entries, err := os.ReadDir(filepath.Join(env.dir, "recordings", "alice"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 segment, err=%v entries=%d", err, len(entries))
	}
}

func TestOfflineSourceIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{false}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())
	env.engine.wg.Wait()

	tasks, err := env.store.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("offline source must not create tasks: %d", len(tasks))
	}
}

func TestBusySourceSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true}
	env.launcher.steps = []launchStep{{content: []byte("video")}} // runs until killed

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())
	env.waitStatus(t, store.Recording)

	probesBefore := env.checker.probes()
	env.engine.checkSources(context.Background())
	time.Sleep(20 * time.Millisecond)
	if env.checker.probes() != probesBefore {
		t.Error("busy source must not be probed again")
	}

	task := env.onlyTask(t)
	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("stop task: %v", err)
	}
	env.waitStatus(t, store.Idle)
}

func TestStopTaskKillsCaptureAndGoesIdle(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true}
	env.launcher.steps = []launchStep{{content: []byte("video")}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())
	task := env.waitStatus(t, store.Recording)

	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("stop task: %v", err)
	}
	env.waitStatus(t, store.Idle)

	env.launcher.mu.Lock()
	killed := env.launcher.procs[0].killed.Load()
	env.launcher.mu.Unlock()
	if !killed {
		t.Error("capture process must be killed on stop")
	}
	if env.publisher.callCount() != 0 {
		t.Error("a stopped task must not publish")
	}
}

func TestEmptySegmentThresholdFailsTask(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true} // stays live so only the threshold ends it
	env.launcher.steps = []launchStep{
		{exitAfter: time.Millisecond},
		{exitAfter: time.Millisecond},
		{exitAfter: time.Millisecond},
	}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())

	task := env.waitStatus(t, store.Errored("stream appears unavailable"))
	if task == nil {
		t.Fatal("missing task")
	}
	if got := env.launcher.launches(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestNoFilesGenerated(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false} // live once, offline on recheck
	env.launcher.steps = []launchStep{{exitAfter: time.Millisecond}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())

	env.waitStatus(t, store.Errored("No files generated"))
}

func TestRestartWhileStillLive(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, true, false} // initial, recheck live, recheck offline
	env.launcher.steps = []launchStep{
		{content: []byte("part one"), exitAfter: time.Millisecond},
		{content: []byte("part two"), exitAfter: time.Millisecond},
	}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())

	env.waitStatus(t, store.Completed)
	if got := env.launcher.launches(); got != 2 {
		t.Errorf("expected 2 segments, got %d", got)
	}
}

func TestSizeLimitRotatesSegment(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false}

	big := make([]byte, 2*1024*1024)
	env.launcher.steps = []launchStep{
		{content: big}, // runs until the size poll kills it
		{content: []byte("tail"), exitAfter: time.Millisecond}, // post-rotation segment ends the stream
	}

	custom := store.DefaultCaptureSettings()
	custom.SegmentSizeMB = 1
	custom.SegmentTimeSec = 0
	env.addSource(t, &store.Source{
		ID: "s1", Name: "alice", URL: "https://twitch.tv/alice",
		UseCustom: true, CustomSettings: &custom,
	})
	env.engine.checkSources(context.Background())

	env.waitStatus(t, store.Completed)
	if got := env.launcher.launches(); got != 2 {
		t.Errorf("expected rotation into 2 segments, got %d", got)
	}
	env.launcher.mu.Lock()
	firstKilled := env.launcher.procs[0].killed.Load()
	env.launcher.mu.Unlock()
	if !firstKilled {
		t.Error("oversized segment must be cut by killing the capture")
	}
}

func TestPublicationAllConfigsAttempted(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false}
	env.checker.title = "Ranked grind"
	env.launcher.steps = []launchStep{{content: []byte("video"), exitAfter: time.Millisecond}}
	env.publisher.errs = map[int]error{0: errors.New("cookie expired")}

	for _, p := range []*store.Profile{
		{ID: "p1", Name: "one", Config: store.UploadConfig{Title: "{title} A"}},
		{ID: "p2", Name: "two", Config: store.UploadConfig{Title: "{title} B"}},
	} {
		if err := env.store.SaveProfile(context.Background(), p); err != nil {
			t.Fatalf("save profile: %v", err)
		}
	}
	env.addSource(t, &store.Source{
		ID: "s1", Name: "alice", URL: "https://twitch.tv/alice",
		LinkedProfileIDs: []string{"p1", "missing", "p2"},
	})
	env.engine.checkSources(context.Background())

	task := env.waitStatus(t, store.Errored("cookie expired"))
	if len(task.UploadConfigs) != 2 {
		t.Errorf("dangling profile link must be dropped: %d configs", len(task.UploadConfigs))
	}
	if env.publisher.callCount() != 2 {
		t.Errorf("every config must be attempted: %d calls", env.publisher.callCount())
	}
	env.publisher.mu.Lock()
	titles := []string{env.publisher.calls[0].title, env.publisher.calls[1].title}
	env.publisher.mu.Unlock()
	if titles[0] != "Ranked grind A" || titles[1] != "Ranked grind B" {
		t.Errorf("titles not rendered from live title: %v", titles)
	}
}

func TestCleanupAfterPublish(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false}
	env.launcher.steps = []launchStep{{content: []byte("video"), exitAfter: time.Millisecond}}

	if err := env.store.SaveProfile(context.Background(), &store.Profile{
		ID: "p1", Name: "one", Config: store.UploadConfig{},
	}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	custom := store.DefaultCaptureSettings()
	custom.CleanupAfterPublish = true
	env.addSource(t, &store.Source{
		ID: "s1", Name: "alice", URL: "https://twitch.tv/alice",
		LinkedProfileIDs: []string{"p1"},
		UseCustom:        true, CustomSettings: &custom,
	})
	env.engine.checkSources(context.Background())

	env.waitStatus(t, store.Completed)

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := os.ReadDir(filepath.Join(env.dir, "recordings", "alice"))
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("published segments not cleaned up: %d left", len(entries))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	env := newTestEnv(t)

	settings := env.engine.Settings()
	settings.SegmentTimeSec = 600
	settings.Quality.Twitch = " 720p "
	updated, err := env.engine.UpdateSettings(context.Background(), settings)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.Quality.Twitch != "720p" {
		t.Errorf("quality not normalized: %q", updated.Quality.Twitch)
	}

	reloaded, err := env.store.LoadCaptureSettings(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.SegmentTimeSec != 600 {
		t.Errorf("settings not persisted: %+v", reloaded)
	}
}

func TestSourceStateReflectsLastOutcome(t *testing.T) {
	env := newTestEnv(t)
	source := &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"}
	env.addSource(t, source)

	if got := env.engine.SourceState(source); got != "monitoring" {
		t.Errorf("fresh source state: %q", got)
	}

	base := time.Now().UTC()
	env.engine.saveTask(context.Background(), &store.Task{
		ID: "old", URL: source.URL, Status: store.Completed, CreatedAt: base,
	})
	if got := env.engine.SourceState(source); got != "completed" {
		t.Errorf("state after completion: %q", got)
	}

	env.engine.saveTask(context.Background(), &store.Task{
		ID: "new", URL: source.URL, Status: store.Errored("cookie expired"), CreatedAt: base.Add(time.Second),
	})
	if got := env.engine.SourceState(source); got != "error" {
		t.Errorf("state after newer failure: %q", got)
	}
}

func TestStopUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.StopTask(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestRemoveRunningTaskRefused(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true}
	env.launcher.steps = []launchStep{{content: []byte("video")}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())
	task := env.waitStatus(t, store.Recording)

	if err := env.engine.RemoveTask(context.Background(), task.ID); err == nil {
		t.Error("running task must not be removable")
	}

	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	env.waitStatus(t, store.Idle)
	if err := env.engine.RemoveTask(context.Background(), task.ID); err != nil {
		t.Errorf("remove stopped task: %v", err)
	}
}

func TestZeroByteSegmentKept(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false} // live once, offline on recheck
	env.launcher.steps = []launchStep{{content: []byte{}, exitAfter: time.Millisecond}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())

	env.waitStatus(t, store.Completed)

	entries, err := os.ReadDir(filepath.Join(env.dir, "recordings", "alice"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("zero-byte segment must stay on disk, err=%v entries=%d", err, len(entries))
	}
}

func TestTimeLimitRotatesSegment(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false}
	env.launcher.steps = []launchStep{
		{content: []byte("part one"), exitAfter: time.Hour}, // cut by the time ceiling
		{content: []byte("part two"), exitAfter: time.Millisecond},
	}

	custom := store.DefaultCaptureSettings()
	custom.SegmentTimeSec = 1
	custom.SegmentSizeMB = 0
	env.addSource(t, &store.Source{
		ID: "s1", Name: "alice", URL: "https://twitch.tv/alice",
		UseCustom: true, CustomSettings: &custom,
	})
	env.engine.checkSources(context.Background())

	env.waitStatus(t, store.Completed)
	if got := env.launcher.launches(); got != 2 {
		t.Errorf("expected rotation into 2 segments, got %d", got)
	}
	env.launcher.mu.Lock()
	firstKilled := env.launcher.procs[0].killed.Load()
	env.launcher.mu.Unlock()
	if !firstKilled {
		t.Error("segment at the time ceiling must be cut by killing the capture")
	}
}

func TestStopTaskTwice(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true}
	env.launcher.steps = []launchStep{{content: []byte("video")}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())
	task := env.waitStatus(t, store.Recording)

	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	env.waitStatus(t, store.Idle)

	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("stop after idle: %v", err)
	}
	if got := env.engine.Task(task.ID).Status; got != store.Idle {
		t.Errorf("task must stay idle after repeated stops: %+v", got)
	}
}

func TestTaskStateSurvivesStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true}
	env.launcher.steps = []launchStep{{content: []byte("video")}}

	env.addSource(t, &store.Source{ID: "s1", Name: "alice", URL: "https://twitch.tv/alice"})
	env.engine.checkSources(context.Background())
	task := env.waitStatus(t, store.Recording)

	// The database going away mid-run must not lose task state.
	if err := env.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if err := env.engine.StopTask(context.Background(), task.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if got := env.engine.Task(task.ID); got != nil && got.Status == store.Idle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task state lost with the store down: %+v", env.engine.Task(task.ID))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if tasks := env.engine.Tasks(); len(tasks) != 1 {
		t.Errorf("registry must still list the task: %d", len(tasks))
	}
}

func TestPublishTitleFetchedAtFinish(t *testing.T) {
	env := newTestEnv(t)
	env.checker.answers = []bool{true, false}
	env.launcher.steps = []launchStep{{content: []byte("video")}}

	if err := env.store.SaveProfile(context.Background(), &store.Profile{
		ID: "p1", Name: "one", Config: store.UploadConfig{Title: "{title}"},
	}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	env.addSource(t, &store.Source{
		ID: "s1", Name: "alice", URL: "https://twitch.tv/alice",
		LinkedProfileIDs: []string{"p1"},
	})
	env.engine.checkSources(context.Background())
	env.waitStatus(t, store.Recording)

	// The title only becomes available while the capture is running.
	env.checker.mu.Lock()
	env.checker.title = "Speedrun night"
	env.checker.mu.Unlock()

	env.launcher.mu.Lock()
	proc := env.launcher.procs[0]
	env.launcher.mu.Unlock()
	proc.exit(nil)

	env.waitStatus(t, store.Completed)
	env.publisher.mu.Lock()
	title := env.publisher.calls[0].title
	env.publisher.mu.Unlock()
	if title != "Speedrun night" {
		t.Errorf("finishing must fetch the missing live title: %q", title)
	}
}

func TestRecoverInterruptedTasks(t *testing.T) {
	env := newTestEnv(t)
	base := time.Now().UTC()
	for id, status := range map[string]store.Status{
		"rec":  store.Recording,
		"up":   store.Uploading,
		"done": store.Completed,
	} {
		if err := env.store.SaveTask(context.Background(), &store.Task{
			ID: id, Name: id, URL: "https://example.com/" + id, Status: status, CreatedAt: base,
		}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	reset, err := env.engine.RecoverInterruptedTasks(context.Background())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if reset != 2 {
		t.Errorf("expected 2 recovered tasks, got %d", reset)
	}

	want := store.Errored(store.InterruptedReason)
	for _, id := range []string{"rec", "up"} {
		if got := env.engine.Task(id); got == nil || got.Status != want {
			t.Errorf("task %s not failed over: %+v", id, got)
		}
	}
	if got := env.engine.Task("done"); got == nil || got.Status != store.Completed {
		t.Errorf("completed task disturbed: %+v", got)
	}
}
