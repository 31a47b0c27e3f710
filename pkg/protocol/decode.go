package protocol

import (
	"bufio"
	"bytes"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/errors"
	"github.com/ajitpratap0/graphsink/pkg/json"
)

// DefaultMaxLineSize bounds a single input line.
const DefaultMaxLineSize = 16 * 1024 * 1024

const maxLoggedInput = 256

// Decode parses one input line into a Message. Every failure is an error of
// type errors.ErrorTypeDecode.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, errors.New(errors.ErrorTypeDecode, "empty line")
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDecode, "invalid message JSON")
	}

	var missing bool
	switch msg.Type {
	case TypeRecord:
		missing = msg.Record == nil
		if !missing && msg.Record.Stream == "" {
			return nil, errors.New(errors.ErrorTypeDecode, "record without stream")
		}
	case TypeState:
		missing = msg.State == nil
	case TypeLog:
		missing = msg.Log == nil
	case TypeTrace:
		missing = msg.Trace == nil
	case TypeConnectionStatus:
		missing = msg.ConnectionStatus == nil
	case "":
		return nil, errors.New(errors.ErrorTypeDecode, "message without type")
	default:
		return nil, errors.Newf(errors.ErrorTypeDecode, "unknown message type %q", msg.Type)
	}
	if missing {
		return nil, errors.Newf(errors.ErrorTypeDecode, "%s message without body", msg.Type)
	}

	return &msg, nil
}

// Reader is a finite, non-restartable sequence of messages read from an
// input stream. Lines that fail to decode are logged and skipped.
//
//	r := protocol.NewReader(os.Stdin, logger)
//	for r.Next() {
//		handle(r.Message())
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	br          *bufio.Reader
	logger      *zap.Logger
	maxLineSize int

	msg     *Message
	err     error
	line    int
	skipped int
	done    bool
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxLineSize = n
		}
	}
}

// NewReader creates a Reader over in.
func NewReader(in io.Reader, logger *zap.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reader{
		br:          bufio.NewReaderSize(in, 64*1024),
		logger:      logger,
		maxLineSize: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next advances to the next decodable message. It returns false at end of
// data or on an I/O error; Err distinguishes the two.
func (r *Reader) Next() bool {
	r.msg = nil
	for !r.done {
		line, tooLong, err := r.readLine()
		if err != nil && err != io.EOF {
			r.err = errors.Wrap(err, errors.ErrorTypeConnection, "read input")
			r.done = true
			return false
		}
		if err == io.EOF {
			r.done = true
			if len(line) == 0 && !tooLong {
				return false
			}
		}
		r.line++

		if tooLong {
			r.skip(errors.Newf(errors.ErrorTypeDecode, "line exceeds %d bytes", r.maxLineSize), line)
			continue
		}
		if len(bytes.TrimSpace(line)) == 0 {
			// Blank lines between messages are not worth a warning.
			continue
		}

		msg, derr := Decode(line)
		if derr != nil {
			r.skip(derr, line)
			continue
		}
		r.msg = msg
		return true
	}
	return false
}

// Message returns the message read by the last successful Next.
func (r *Reader) Message() *Message { return r.msg }

// Err returns the I/O error that ended the sequence, if any.
func (r *Reader) Err() error { return r.err }

// Line returns the 1-based number of the last line consumed.
func (r *Reader) Line() int { return r.line }

// Skipped returns how many lines failed to decode.
func (r *Reader) Skipped() int { return r.skipped }

func (r *Reader) skip(err error, line []byte) {
	r.skipped++
	input := line
	if len(input) > maxLoggedInput {
		input = input[:maxLoggedInput]
	}
	r.logger.Warn("Skipping undecodable input line",
		zap.Int("line", r.line),
		zap.String("input", string(input)),
		zap.Error(err))
}

// readLine reads up to the next newline. Lines beyond maxLineSize are
// drained and reported as tooLong with their leading bytes.
func (r *Reader) readLine() (line []byte, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(buf)+len(chunk) > r.maxLineSize {
			if !tooLong {
				keep := r.maxLineSize - len(buf)
				if keep > 0 {
					buf = append(buf, chunk[:keep]...)
				}
			}
			tooLong = true
		} else if !tooLong {
			buf = append(buf, chunk...)
		}

		switch err {
		case nil:
			return bytes.TrimRight(buf, "\r\n"), tooLong, nil
		case bufio.ErrBufferFull:
			continue
		default:
			return bytes.TrimRight(buf, "\r\n"), tooLong, err
		}
	}
}
