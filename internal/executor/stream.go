package executor

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// Stream names one of the two captured outputs.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

func (s Stream) IsError() bool { return s == StreamStderr }

// streamLines reads r line by line on its own goroutine and posts every line,
// then exactly one done notification, to the loop. Lines from one stream keep
// their order because the loop is FIFO.
func streamLines(loop Dispatcher, stream Stream, r io.Reader, onLine func(line string), onDone func(err error)) {
	go func() {
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}

		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				text := strings.TrimSuffix(line, "\n")
				loop.Post(func() { onLine(text) })
			}
			if err != nil {
				var readErr error
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					readErr = &StreamReadError{Stream: stream, OriginalError: err}
				}
				loop.Post(func() { onDone(readErr) })
				return
			}
		}
	}()
}
