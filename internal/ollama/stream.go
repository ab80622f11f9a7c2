package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// StreamReader reassembles an NDJSON generate stream into text fragments.
// The upstream writes one JSON object per line, but a single read may carry
// zero, one, or several lines, and lines may be split across reads; the
// bufio layer keeps the partial tail until the next read completes it.
type StreamReader struct {
	reader *bufio.Reader
	done   bool
	err    error
}

// NewStreamReader wraps the raw upstream response body.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Next returns the next non-empty text fragment in arrival order.
//
// io.EOF signals normal completion: either an object carrying done=true was
// seen, or the connection ended cleanly. A done=true object is authoritative
// and short-circuits the stream; bytes buffered after it are never parsed.
// Any other error means the stream failed mid-flight.
func (s *StreamReader) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if s.err != nil {
			return "", s.err
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			// A valid final object may arrive without a trailing
			// newline; process whatever came with the error before
			// surfacing it on the following call.
			s.err = err
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		var resp GenerateResponse
		if jerr := json.Unmarshal(trimmed, &resp); jerr != nil {
			// One malformed line must not corrupt the rest of the
			// response.
			slog.Warn("skipping malformed stream line", "error", jerr)
			continue
		}

		if resp.Done {
			s.done = true
		}
		if resp.Response != "" {
			return resp.Response, nil
		}
	}
}

// Drain reads the remaining fragments and returns their concatenation.
// Used by callers that requested streaming upstream but need the full text.
func (s *StreamReader) Drain() (string, error) {
	var sb bytes.Buffer
	for {
		text, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		sb.WriteString(text)
	}
}
