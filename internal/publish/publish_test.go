package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"omnistream/internal/store"
)

func TestRenderTitle(t *testing.T) {
	now := time.Date(2026, 9, 1, 20, 30, 0, 0, time.UTC)

	cases := []struct {
		name      string
		template  string
		liveTitle string
		taskName  string
		want      string
	}{
		{
			name:      "placeholder takes live title",
			template:  "{title} 录播 %Y-%m-%d",
			liveTitle: "Ranked grind",
			taskName:  "Alice",
			want:      "Ranked grind 录播 2026-09-01",
		},
		{
			name:      "blank live title falls back to task name",
			template:  "{title} 录播 %Y-%m-%d",
			liveTitle: "   ",
			taskName:  "Alice",
			want:      "Alice 录播 2026-09-01",
		},
		{
			name:      "live title trimmed",
			template:  "{title}",
			liveTitle: "  trailing  ",
			taskName:  "Alice",
			want:      "trailing",
		},
		{
			name:     "empty template uses placeholder",
			template: "",
			taskName: "Alice",
			want:     "Alice",
		},
		{
			name:     "strftime without placeholder",
			template: "archive %Y%m%d %H:%M",
			taskName: "Alice",
			want:     "archive 20260901 20:30",
		},
		{
			name:      "repeated placeholder",
			template:  "{title}/{title}",
			liveTitle: "x",
			taskName:  "Alice",
			want:      "x/x",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RenderTitle(tc.template, tc.liveTitle, tc.taskName, now)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	valid := store.DefaultUploadConfig()
	if err := ValidateConfig(valid); err != nil {
		t.Errorf("default config must validate: %v", err)
	}

	noAccount := valid
	noAccount.AccountFile = "  "
	if err := ValidateConfig(noAccount); err == nil {
		t.Error("expected error for missing account file")
	}

	noTid := valid
	noTid.Tid = 0
	if err := ValidateConfig(noTid); err == nil {
		t.Error("expected error for missing tid")
	}

	badCopyright := valid
	badCopyright.Copyright = 3
	if err := ValidateConfig(badCopyright); err == nil {
		t.Error("expected error for copyright 3")
	}
	badCopyright.Copyright = 2
	if err := ValidateConfig(badCopyright); err != nil {
		t.Errorf("copyright 2 must validate: %v", err)
	}
}

type fakeExecutor struct {
	output []byte
	err    error
	binary string
	args   []string
	calls  int
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.calls++
	f.binary = binary
	f.args = args
	return f.output, f.err
}

func newPublisher(t *testing.T, exec Executor) *BiliupPublisher {
	t.Helper()
	p, err := NewBiliupPublisher("biliup", 0, nil, WithExecutor(exec))
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return p
}

func TestPublishBuildsCommand(t *testing.T) {
	exec := &fakeExecutor{}
	p := newPublisher(t, exec)

	cfg := store.UploadConfig{
		Tags:        []string{"vod", "archive"},
		Tid:         171,
		Copyright:   1,
		Description: "nightly capture",
		AccountFile: "cookies.json",
	}
	files := []string{"/rec/a-1.mp4", "/rec/a-2.mp4"}
	if err := p.Publish(context.Background(), files, cfg, "Alice 2026-09-01"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	joined := strings.Join(exec.args, " ")
	for _, want := range []string{
		"--user-cookie cookies.json",
		"--title Alice 2026-09-01",
		"--tid 171",
		"--copyright 1",
		"--tag vod,archive",
		"--desc nightly capture",
		"/rec/a-1.mp4 /rec/a-2.mp4",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("command missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "--dynamic") {
		t.Errorf("unexpected --dynamic flag: %s", joined)
	}
}

func TestPublishDefaultTag(t *testing.T) {
	exec := &fakeExecutor{}
	p := newPublisher(t, exec)

	cfg := store.DefaultUploadConfig()
	if err := p.Publish(context.Background(), []string{"/rec/a.mp4"}, cfg, "t"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(strings.Join(exec.args, " "), "--tag omnistream") {
		t.Errorf("default tag not applied: %v", exec.args)
	}
}

func TestPublishFailureSurfacesOutput(t *testing.T) {
	exec := &fakeExecutor{
		output: []byte("uploading...\nerror: cookie expired\n"),
		err:    errors.New("exit status 1"),
	}
	p := newPublisher(t, exec)

	err := p.Publish(context.Background(), []string{"/rec/a.mp4"}, store.DefaultUploadConfig(), "t")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "cookie expired") {
		t.Errorf("tool output not surfaced: %v", err)
	}
}

func TestPublishValidatesFirst(t *testing.T) {
	exec := &fakeExecutor{}
	p := newPublisher(t, exec)

	bad := store.DefaultUploadConfig()
	bad.AccountFile = ""
	if err := p.Publish(context.Background(), []string{"/rec/a.mp4"}, bad, "t"); err == nil {
		t.Fatal("expected validation error")
	}
	if exec.calls != 0 {
		t.Error("biliup must not run on invalid config")
	}

	if err := p.Publish(context.Background(), nil, store.DefaultUploadConfig(), "t"); err == nil {
		t.Fatal("expected error for empty file list")
	}
	if exec.calls != 0 {
		t.Error("biliup must not run with no files")
	}
}
