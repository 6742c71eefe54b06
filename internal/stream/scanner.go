package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxFrameSize = 2 * 1024 * 1024

// Block is one blank-line delimited SSE frame. Multiple data lines are joined
// with "\n".
type Block struct {
	Event string
	Data  string
}

// BlockReader reads SSE frames from r.
type BlockReader struct {
	sc *bufio.Scanner
}

func NewBlockReader(r io.Reader) *BlockReader {
	sc := bufio.NewScanner(r)
	// Increase scanner buffer for long JSON frames.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, maxFrameSize)
	sc.Split(splitBlocks)
	return &BlockReader{sc: sc}
}

// Next returns the next frame that carries an event or data line. It returns
// io.EOF once the stream is exhausted.
func (b *BlockReader) Next() (Block, error) {
	for b.sc.Scan() {
		blk, ok := parseBlock(b.sc.Text())
		if ok {
			return blk, nil
		}
	}
	if err := b.sc.Err(); err != nil {
		return Block{}, err
	}
	return Block{}, io.EOF
}

// NewLineScanner returns a scanner over newline framed streams with the same
// per-line limit as BlockReader.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, maxFrameSize)
	return sc
}

func splitBlocks(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i, n := blockEnd(data); i >= 0 {
		return i + n, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func blockEnd(data []byte) (int, int) {
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case lf < 0 && crlf < 0:
		return -1, 0
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

func parseBlock(raw string) (Block, bool) {
	var (
		blk     Block
		data    []string
		hasData bool
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "", strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			blk.Event = fieldValue(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = append(data, fieldValue(line[len("data:"):]))
			hasData = true
		}
	}
	blk.Data = strings.Join(data, "\n")
	return blk, hasData || blk.Event != ""
}

func fieldValue(s string) string {
	return strings.TrimPrefix(s, " ")
}
