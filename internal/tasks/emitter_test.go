package tasks

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/desertthunder/ytlib/internal/stream"
)

func TestEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := shared.NewLogger(&buf)
	logger.SetLevel(log.DebugLevel)
	broker := stream.NewBroker(10)

	e := NewEmitter("job-1", logger, broker)
	e.Debug(PhaseDownload, "noisy detail")
	e.Warn(PhaseDownload, "retrying retrieval", "track", "a1", "error", errors.New("boom"))
	e.Progress(retrievedUpdate(1, 2, albumItem().Tracks[0]))

	t.Run("logger receives every line", func(t *testing.T) {
		out := buf.String()
		for _, want := range []string{"noisy detail", "retrying retrieval", "job=job-1", "phase=downloading"} {
			if !strings.Contains(out, want) {
				t.Errorf("log output missing %q: %s", want, out)
			}
		}
	})

	t.Run("stream skips debug lines", func(t *testing.T) {
		lines := broker.Recent("job-1")
		if len(lines) != 2 {
			t.Fatalf("expected 2 stream entries, got %d", len(lines))
		}

		warn := lines[0]
		if warn.Level != "warn" || warn.Phase != "downloading" || warn.Fields["error"] != "boom" {
			t.Errorf("unexpected entry %+v", warn)
		}
		if lines[1].Fields["overall"] != 50 {
			t.Errorf("expected overall 50, got %v", lines[1].Fields["overall"])
		}
	})

	t.Run("nil sinks", func(t *testing.T) {
		NewEmitter("job-2", nil, nil).Info(PhaseFetch, "quiet")
	})
}
