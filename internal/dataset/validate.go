// Package dataset validates fine-tuning training files.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 * 1024 * 1024

// ValidationError describes the first malformed line of a training file.
type ValidationError struct {
	Line   int // 1-indexed
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

const (
	reasonInvalidJSON     = "line is not valid JSON"
	reasonMissingMessages = "'messages' key missing or not a list"
	reasonEmptyMessages   = "'messages' list is empty"
	reasonBadMessage      = "malformed message (missing 'role' or 'content')"
)

// ValidateFile validates the JSONL file at path. See Validate.
func ValidateFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open training file: %w", err)
	}
	defer f.Close()

	return Validate(f)
}

// Validate checks that every line of r is a training record: a JSON object
// with a non-empty "messages" list whose elements all carry "role" and
// "content". It stops at the first bad line and returns a *ValidationError
// for it. On success it returns the number of records.
func Validate(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if reason := checkLine(scanner.Bytes()); reason != "" {
			return lineNum - 1, &ValidationError{Line: lineNum, Reason: reason}
		}
	}
	if err := scanner.Err(); err != nil {
		return lineNum, fmt.Errorf("read training file: %w", err)
	}

	return lineNum, nil
}

// checkLine returns "" for a well-formed record or the failure reason.
func checkLine(line []byte) string {
	if !json.Valid(line) {
		return reasonInvalidJSON
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(line, &record); err != nil {
		// valid JSON, but not an object
		return reasonMissingMessages
	}

	raw, ok := record["messages"]
	if !ok {
		return reasonMissingMessages
	}

	var messages []json.RawMessage
	if err := json.Unmarshal(raw, &messages); err != nil || messages == nil {
		return reasonMissingMessages
	}
	if len(messages) == 0 {
		return reasonEmptyMessages
	}

	for _, m := range messages {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(m, &fields); err != nil || fields == nil {
			return reasonBadMessage
		}
		_, hasRole := fields["role"]
		_, hasContent := fields["content"]
		if !hasRole || !hasContent {
			return reasonBadMessage
		}
	}

	return ""
}
