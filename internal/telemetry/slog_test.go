package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupLoggerAcceptsAnyConfigValue(t *testing.T) {
	// Logging config comes straight from the config file, so garbage values
	// must degrade to defaults rather than panic at startup.
	formats := []string{"json", "text", "JSON", "", "yaml"}
	levels := []string{"debug", "info", "warn", "warning", "error", "ERROR", "", "verbose"}

	for _, format := range formats {
		for _, level := range levels {
			t.Run(format+"/"+level, func(t *testing.T) {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("SetupLogger(%q, %q) panicked: %v", format, level, r)
					}
				}()
				SetupLogger(format, level)
			})
		}
	}
	SetupLogger("text", "error") // quiet the rest of the binary
}

func TestJSONRecordsCarryStructuredFields(t *testing.T) {
	// Same handler construction as SetupLogger("json", "info"), pointed at a
	// buffer so the record can be decoded.
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("module registered",
		"module_id", "11111111-2222-3333-4444-555555555555",
		"slug", "acme-labs-inventory-sync",
		"source", "archive")

	var obj map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &obj); err != nil {
		t.Fatalf("record is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if obj["msg"] != "module registered" {
		t.Errorf("expected msg=module registered, got %v", obj["msg"])
	}
	if obj["slug"] != "acme-labs-inventory-sync" {
		t.Errorf("expected slug field, got %v", obj["slug"])
	}
	if obj["source"] != "archive" {
		t.Errorf("expected source field, got %v", obj["source"])
	}
}

func TestTextRecordsKeepKeyValueForm(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("QA run complete", "recommendation", "approve")

	line := buf.String()
	if !strings.Contains(line, "QA run complete") {
		t.Errorf("text output missing message: %q", line)
	}
	if !strings.Contains(line, "recommendation=approve") {
		t.Errorf("text output missing recommendation=approve: %q", line)
	}
}

func TestWarnLevelSuppressesWorkerChatter(t *testing.T) {
	// Operators running at warn should not see per-module progress records,
	// only the delivery failures the workers Warn about.
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	logger.Info("analysis started")
	logger.Warn("failed to send completion mail")

	output := buf.String()
	if strings.Contains(output, "analysis started") {
		t.Error("Info record appeared despite LevelWarn filter")
	}
	if !strings.Contains(output, "failed to send completion mail") {
		t.Error("Warn record was unexpectedly suppressed")
	}
}

func TestDebugLevelEnablesSource(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("SetupLogger with debug+json panicked: %v", r)
		}
		SetupLogger("text", "error")
	}()
	SetupLogger("json", "debug")
}
