package streaming

import (
	"bytes"
	"io"
	"strings"
)

// Common SSE frame delimiters.
var (
	DelimiterLF   = []byte("\n\n")
	DelimiterCRLF = []byte("\r\n\r\n")
)

// FrameSplitter splits a chunked response body into discrete SSE frames.
//
// Network reads do not line up with frame boundaries: a frame may arrive in
// many reads, several frames may arrive in one read, and the delimiter itself
// may straddle two reads. The splitter buffers until the full delimiter is
// seen before releasing a frame.
//
// Usage:
//
//	splitter := NewFrameSplitter(resp.Body, DelimiterLF)
//	for {
//	    frame, err := splitter.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // process frame
//	}
type FrameSplitter struct {
	reader  io.Reader
	delim   []byte
	buf     []byte
	readBuf []byte
	err     error
}

// NewFrameSplitter creates a splitter using delim as the frame boundary.
// A nil delimiter defaults to DelimiterLF.
func NewFrameSplitter(reader io.Reader, delim []byte) *FrameSplitter {
	if len(delim) == 0 {
		delim = DelimiterLF
	}
	return &FrameSplitter{
		reader:  reader,
		delim:   delim,
		readBuf: make([]byte, 32*1024),
	}
}

// Next returns the next non-empty frame without its delimiter.
// It returns io.EOF once the stream is exhausted. A trailing frame that was
// not terminated by a delimiter is still returned before io.EOF.
func (s *FrameSplitter) Next() ([]byte, error) {
	for {
		if i := bytes.Index(s.buf, s.delim); i >= 0 {
			frame := make([]byte, i)
			copy(frame, s.buf[:i])
			s.buf = s.buf[i+len(s.delim):]
			if len(bytes.TrimSpace(frame)) == 0 {
				continue
			}
			return frame, nil
		}

		if s.err != nil {
			if s.err == io.EOF && len(bytes.TrimSpace(s.buf)) > 0 {
				frame := s.buf
				s.buf = nil
				return frame, nil
			}
			return nil, s.err
		}

		n, err := s.reader.Read(s.readBuf)
		if n > 0 {
			s.buf = append(s.buf, s.readBuf[:n]...)
		}
		if err != nil {
			s.err = err
		}
	}
}

// Event is a parsed SSE frame.
type Event struct {
	// Name is the "event:" field, empty for the default event type
	Name string

	// Data is the payload assembled from one or more "data:" lines
	Data string
}

// IsDone reports whether the event is the OpenAI-style terminal sentinel.
func (e Event) IsDone() bool {
	return strings.TrimSpace(e.Data) == "[DONE]"
}

// ParseSSE parses one frame into an Event. Comment lines and unknown fields
// are ignored; multiple data lines are joined with newlines.
func ParseSSE(frame []byte) Event {
	var ev Event
	var data []string

	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			data = append(data, value)
		case "event":
			ev.Name = value
		}
	}

	ev.Data = strings.Join(data, "\n")
	return ev
}
