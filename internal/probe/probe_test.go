package probe

import (
	"context"
	"errors"
	"testing"
)

type fakeExecutor struct {
	output []byte
	err    error
	calls  int
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string) ([]byte, error) {
	f.calls++
	f.args = args
	return f.output, f.err
}

func newChecker(t *testing.T, exec Executor) *StreamlinkChecker {
	t.Helper()
	checker, err := NewStreamlinkChecker("streamlink", 30, nil, WithExecutor(exec))
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	return checker
}

func TestIsLiveWithStreams(t *testing.T) {
	exec := &fakeExecutor{output: []byte(`{"streams":{"best":{},"720p":{}},"metadata":{"title":"night stream"}}`)}
	checker := newChecker(t, exec)

	live, err := checker.IsLive(context.Background(), "https://twitch.tv/alice")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if !live {
		t.Error("expected live")
	}
	if exec.args[0] != "--json" {
		t.Errorf("expected --json invocation, got %v", exec.args)
	}
}

func TestIsLiveOfflineClassification(t *testing.T) {
	offline := []string{
		`{"error":"No playable streams found on this URL: https://twitch.tv/alice"}`,
		`{"error":"no streams found"}`,
		`{"error":"The channel is offline"}`,
	}
	for _, out := range offline {
		checker := newChecker(t, &fakeExecutor{output: []byte(out)})
		live, err := checker.IsLive(context.Background(), "https://twitch.tv/alice")
		if err != nil {
			t.Errorf("%s: unexpected error %v", out, err)
		}
		if live {
			t.Errorf("%s: expected offline", out)
		}
	}
}

func TestIsLiveToolError(t *testing.T) {
	checker := newChecker(t, &fakeExecutor{output: []byte(`{"error":"Unable to open URL: connection refused"}`)})
	if _, err := checker.IsLive(context.Background(), "https://twitch.tv/alice"); err == nil {
		t.Error("expected error for non-offline failure")
	}

	checker = newChecker(t, &fakeExecutor{err: errors.New("exec format error")})
	if _, err := checker.IsLive(context.Background(), "https://twitch.tv/alice"); err == nil {
		t.Error("expected error when streamlink cannot run")
	}

	checker = newChecker(t, &fakeExecutor{output: []byte("not json")})
	if _, err := checker.IsLive(context.Background(), "https://twitch.tv/alice"); err == nil {
		t.Error("expected error for unreadable output")
	}
}

func TestIsLiveNoStreamsNoError(t *testing.T) {
	checker := newChecker(t, &fakeExecutor{output: []byte(`{"streams":{}}`)})
	live, err := checker.IsLive(context.Background(), "https://twitch.tv/alice")
	if err != nil {
		t.Fatalf("IsLive: %v", err)
	}
	if live {
		t.Error("empty stream map must read as offline")
	}
}

func TestProbeTitle(t *testing.T) {
	cases := map[string]string{
		`{"streams":{"best":{}},"metadata":{"title":"  Morning Run  "}}`: "Morning Run",
		`{"streams":{"best":{}},"title":"fallback title"}`:               "fallback title",
		`{"streams":{"best":{}},"metadata":{"title":""}}`:                "",
		`{"error":"is offline"}`:                                         "",
		`garbage`:                                                        "",
	}
	for out, want := range cases {
		checker := newChecker(t, &fakeExecutor{output: []byte(out)})
		if got := checker.ProbeTitle(context.Background(), "https://twitch.tv/alice"); got != want {
			t.Errorf("%s: got %q, want %q", out, got, want)
		}
	}
}

func TestNewStreamlinkCheckerRequiresBinary(t *testing.T) {
	if _, err := NewStreamlinkChecker("  ", 30, nil); err == nil {
		t.Error("expected error for blank binary")
	}
}
