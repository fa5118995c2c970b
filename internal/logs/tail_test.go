package logs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	result, err := LastLines(path, 2)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if !reflect.DeepEqual(result.Lines, []string{"three", "four"}) {
		t.Fatalf("unexpected lines: %v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("expected nonzero offset at end of file")
	}
}

func TestLastLinesFewerThanLimit(t *testing.T) {
	path := writeLog(t, "only\n")

	result, err := LastLines(path, 10)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if !reflect.DeepEqual(result.Lines, []string{"only"}) {
		t.Fatalf("unexpected lines: %v", result.Lines)
	}
}

func TestLastLinesMissingFile(t *testing.T) {
	result, err := LastLines(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestReadFromResumesAtOffset(t *testing.T) {
	path := writeLog(t, "first\n")

	initial, err := LastLines(path, 10)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("second\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	result, err := ReadFrom(path, initial.Offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !reflect.DeepEqual(result.Lines, []string{"second"}) {
		t.Fatalf("unexpected lines: %v", result.Lines)
	}
}

func TestReadFromClampsOffsetPastEnd(t *testing.T) {
	path := writeLog(t, "short\n")

	result, err := ReadFrom(path, 1<<20)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("expected no lines past end, got %v", result.Lines)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Follow(ctx, path, 0, 5*time.Millisecond, func(line string) {
			got <- line
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("alive\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	select {
	case line := <-got:
		if line != "alive" {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for followed line")
	}

	cancel()
	<-done
}
