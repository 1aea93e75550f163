package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew_TagsEveryLineWithARunID(t *testing.T) {
	log := New("info", false)

	var buf bytes.Buffer
	log = log.Output(&buf)
	log.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"run_id"`) {
		t.Fatalf("expected a run_id field in the log line, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected the message in the log line, got %q", out)
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log := New("not-a-level", false)
	if log.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected fallback to info level, got %v", log.GetLevel())
	}
}

func TestNew_DistinctRunsGetDistinctRunIDs(t *testing.T) {
	runID := func() string {
		var buf bytes.Buffer
		log := New("info", false).Output(&buf)
		log.Info().Msg("same message")

		var line map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("decode log line %q: %v", buf.String(), err)
		}
		id, _ := line["run_id"].(string)
		return id
	}

	id1, id2 := runID(), runID()
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected distinct run_id tags across independently constructed loggers, got %q and %q", id1, id2)
	}
}

func TestLogThroughput_ReportsHitRateAndThroughput(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	LogThroughput(log, 9, 1, 2*time.Second, 2*1024*1024)

	out := buf.String()
	if !strings.Contains(out, `"hit_rate_pct":90`) {
		t.Fatalf("expected a 90%% hit rate, got %q", out)
	}
	if !strings.Contains(out, "tile cache stats") {
		t.Fatalf("expected the summary message, got %q", out)
	}
}
