package zerolog

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pixelhatch/creditledger/pkg/ledger"
)

func TestLogger_Levels(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Debug("debug message", ledger.Field{Key: "key", Value: "value"})
	logger.Info("info message", ledger.Field{Key: "key", Value: "value"})
	logger.Warn("warn message", ledger.Field{Key: "key", Value: "value"})
	logger.Error("error message", ledger.Field{Key: "key", Value: "value"})

	if output.Len() == 0 {
		t.Error("Expected log output to be written")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	// Debug and Info should be filtered out
	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	if output.Len() == 0 {
		t.Error("Expected warn to be logged")
	}
}

func TestLogger_MultipleFields(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("test message",
		ledger.Field{Key: "user_id", Value: "user1"},
		ledger.Field{Key: "plan", Value: "pro"},
		ledger.Field{Key: "credits", Value: 100},
	)

	if output.Len() == 0 {
		t.Error("Expected log with multiple fields to be written")
	}
}
