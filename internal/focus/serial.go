package focus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.bug.st/serial"

	"github.com/cogconvo/captioner/pkg/core"
)

// noFocus is the device code for "looking at nobody".
const noFocus = "9"

// ParseSerialLine maps a device line to a juror. Codes 0..3 are the jurors
// in seat order. Every other line, 9 included, means nobody; ok is false for
// lines that are not a known code.
func ParseSerialLine(line string) (core.JurorID, bool) {
	line = strings.TrimSpace(line)
	if line == noFocus {
		return core.JurorNone, true
	}
	if len(line) != 1 || line[0] < '0' || line[0] > '3' {
		return core.JurorNone, false
	}
	id, err := core.JurorFromIndex(int(line[0] - '0'))
	return id, err == nil
}

// SerialSource reads newline-terminated focus codes from a serial device.
type SerialSource struct {
	port   string
	baud   int
	open   func() (io.ReadCloser, error)
	logger *slog.Logger
}

// NewSerialSource creates a source for the device at port.
func NewSerialSource(port string, baud int, logger *slog.Logger) *SerialSource {
	s := &SerialSource{port: port, baud: baud, logger: logger}
	s.open = s.openPort
	return s
}

func (s *SerialSource) openPort() (io.ReadCloser, error) {
	p, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", s.port, err)
	}
	return p, nil
}

// Run reads the device until ctx is done or the device fails.
func (s *SerialSource) Run(ctx context.Context, emit func(core.JurorID)) error {
	rc, err := s.open()
	if err != nil {
		return err
	}
	return readLines(ctx, rc, emit, s.logger)
}

func readLines(ctx context.Context, rc io.ReadCloser, emit func(core.JurorID), logger *slog.Logger) error {
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer func() {
		if stop() {
			_ = rc.Close()
		}
	}()

	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		id, ok := ParseSerialLine(sc.Text())
		if !ok {
			logger.Debug("unknown serial code, focusing nobody", "line", sc.Text())
		}
		emit(id)
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read serial: %w", err)
	}
	return nil
}
