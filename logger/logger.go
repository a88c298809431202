// Package logger provides structured logging for the call orchestration
// core with automatic PII redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Conversation state transitions
//   - Evaluator rejections and turn failures
//   - Interruption and latency events
//   - Automatic redaction of phone numbers, account digits, and API keys
//   - Contextual logging keyed by call id
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/voicecollect/callcore/version"
)

// DefaultLogger is the global structured logger instance.
// It is safe for concurrent use and initialized with slog.LevelInfo by default.
var DefaultLogger *slog.Logger

func init() {
	// Check LOG_LEVEL environment variable
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(NewContextHandler(handler))
	version.LogStartup()
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// StateTransition logs an accepted conversation state transition.
func StateTransition(callID string, turnSeq uint64, from, to string, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"call_id", callID,
		"turn_seq", turnSeq,
		"from", from,
		"to", to,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("state transition", allAttrs...)
}

// TransitionRejected logs a rejected state transition proposal.
func TransitionRejected(callID string, turnSeq uint64, from, to string, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"call_id", callID,
		"turn_seq", turnSeq,
		"from", from,
		"proposed", to,
	)
	allAttrs = append(allAttrs, attrs...)
	Warn("transition rejected", allAttrs...)
}

// EvaluationFailed logs an evaluator rejection of an LLM turn result.
func EvaluationFailed(callID string, turnSeq uint64, rule string, reason string, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"call_id", callID,
		"turn_seq", turnSeq,
		"rule", rule,
		"reason", RedactSensitiveData(reason),
	)
	allAttrs = append(allAttrs, attrs...)
	Warn("evaluation failed", allAttrs...)
}

// Interruption logs a detected debtor interruption and the resulting flush.
func Interruption(callID string, flushedChunks int, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"call_id", callID,
		"flushed_chunks", flushedChunks,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("interruption", allAttrs...)
}

// LatencyBreach logs a turn that exceeded the end-to-end latency threshold
// with a per-stage breakdown.
func LatencyBreach(callID string, turnSeq uint64, total time.Duration, stages map[string]time.Duration) {
	attrs := make([]any, 0, 6+2*len(stages))
	attrs = append(attrs,
		"call_id", callID,
		"turn_seq", turnSeq,
		"total_ms", total.Milliseconds(),
	)
	for stage, d := range stages {
		attrs = append(attrs, "stage_"+stage+"_ms", d.Milliseconds())
	}
	Warn("turn latency above threshold", attrs...)
}

// ProviderError logs a failed STT/TTS/LLM provider call.
func ProviderError(provider, op string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"op", op,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("provider call failed", allAttrs...)
}

// sensitivePatterns contains compiled regular expressions for data that must
// never reach log output: API keys plus debtor PII (phone numbers, account
// digit runs).
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),                        // OpenAI-style API keys
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`),                    // Bearer tokens
	regexp.MustCompile(`(?:\+?\d{1,2}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`), // US phone numbers, optional country code
	regexp.MustCompile(`\b\d{9,}\b`),                                 // long account digit runs
}

// RedactSensitiveData removes phone numbers, account digit runs, API keys
// and bearer tokens from strings before they are logged. Matches keep their
// first few characters for debugging context where safe.
//
// This function is safe for concurrent use as it only reads from the
// compiled patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if strings.HasPrefix(match, "sk-") && len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}
