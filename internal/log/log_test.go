package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLog_FormatAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelInfo)

	Debug(CatSet, "hidden")
	Info(CatSet, "inserted", "set", "served", "size", 3)
	Warn(CatWatch, "orphan", "key")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[INFO] [set] inserted set=served size=3\n")
	require.Contains(t, out, "[WARN] [watch] orphan key=<missing>\n")
}

func TestLog_SetEnabledAndMinLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelInfo)

	SetEnabled(false)
	Error(CatConfig, "dropped")
	SetEnabled(true)
	SetMinLevel(LevelDebug)
	Debug(CatConfig, "kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "[DEBUG] [config] kept")
}

func TestErrorErr(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	ErrorErr(CatSource, "sync failed", errors.New("boom"), "source", "local")
	ErrorErr(CatSource, "no error", nil)

	require.Contains(t, buf.String(), "sync failed source=local error=boom")
	require.Contains(t, buf.String(), "no error error=<nil>")
}

func TestRecovered_IncludesPanicAndStack(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, LevelDebug)

	func() {
		defer func() {
			if r := recover(); r != nil {
				Recovered(CatWatch, "watcher panicked", r, "set", "a")
			}
		}()
		panic("kaboom")
	}()

	out := buf.String()
	require.Contains(t, out, "[WARN] [watch] watcher panicked set=a panic=kaboom stack=")
}

func TestInit_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rankreg.log")
	cleanup, err := Init(path)
	require.NoError(t, err)

	Info(CatConfig, "first")
	Info(CatConfig, "second")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "second")
}

func TestInit_BadPath(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "missing", "rankreg.log"))
	require.Error(t, err)
}

func TestSubscribe_ReceivesEntries(t *testing.T) {
	InitWriter(&bytes.Buffer{}, LevelInfo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := Subscribe(ctx)
	require.NotNil(t, ch)
	Info(CatChain, "watching", "chain", "rankreg")

	select {
	case ev := <-ch:
		require.Contains(t, ev.Payload, "[INFO] [chain] watching chain=rankreg")
	case <-time.After(time.Second):
		t.Fatal("no log event received")
	}
}
