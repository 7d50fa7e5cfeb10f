package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// normalizeJSONC turns JSONC into strict JSON in one pass. Comments and
// trailing commas become spaces so byte offsets, and therefore the line and
// column of any later decode error, still match the original file.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	pendingComma := -1

	blank := func(from, to int) {
		for k := from; k < to; k++ {
			if out[k] != '\n' && out[k] != '\r' && out[k] != '\t' {
				out[k] = ' '
			}
		}
	}

	for i := 0; i < len(out); i++ {
		switch ch := out[i]; {
		case ch == '"':
			end, ok := skipString(out, i)
			if !ok {
				// Leave it for the decoder to report with a position.
				return string(out), nil
			}
			pendingComma = -1
			i = end
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			end := i + 2
			for end < len(out) && out[end] != '\n' && out[end] != '\r' {
				end++
			}
			blank(i, end)
			i = end - 1
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			closeAt := strings.Index(string(out[i+2:]), "*/")
			if closeAt < 0 {
				return "", fmt.Errorf("unterminated block comment in JSONC")
			}
			end := i + 2 + closeAt + 2
			blank(i, end)
			i = end - 1
		case ch == ',':
			pendingComma = i
		case ch == '}' || ch == ']':
			if pendingComma >= 0 {
				out[pendingComma] = ' '
			}
			pendingComma = -1
		case isJSONWhitespace(ch):
		default:
			pendingComma = -1
		}
	}

	return string(out), nil
}

// skipString returns the index of the quote closing the string opened at
// start.
func skipString(b []byte, start int) (int, bool) {
	for i := start + 1; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '"':
			return i, true
		}
	}
	return 0, false
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return fmt.Errorf("multiple JSON values are not allowed")
	default:
		return err
	}
}

// wrapJSONDecodeError prefixes syntax and type errors with their location.
func wrapJSONDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// offsetToLineCol maps a decoder offset, which points just past the
// offending byte, to a 1-based line and column.
func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 || content == "" {
		return 1, 1
	}
	prefix := content[:min(int(offset), len(content))-1]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
