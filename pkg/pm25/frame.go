package pm25

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameSize is the size of a PMS5003 data frame in bytes.
	FrameSize = 32

	frameStart1    = 0x42
	frameStart2    = 0x4D
	frameLength    = 28 // 13 data words + checksum
	checksumOffset = 30
	maxHuntBytes   = 2 * FrameSize
)

// Frame is a decoded PMS5003 data frame. Concentrations are in µg/m³,
// particle counts are per 0.1 L of air.
type Frame struct {
	PM10Standard  uint16
	PM25Standard  uint16
	PM100Standard uint16
	PM10Env       uint16
	PM25Env       uint16
	PM100Env      uint16

	Particles03um  uint16
	Particles05um  uint16
	Particles10um  uint16
	Particles25um  uint16
	Particles50um  uint16
	Particles100um uint16
}

func (f *Frame) words() []*uint16 {
	return []*uint16{
		&f.PM10Standard, &f.PM25Standard, &f.PM100Standard,
		&f.PM10Env, &f.PM25Env, &f.PM100Env,
		&f.Particles03um, &f.Particles05um, &f.Particles10um,
		&f.Particles25um, &f.Particles50um, &f.Particles100um,
	}
}

// ParseFrame decodes a 32-byte PMS5003 frame.
// Format: 0x42 0x4D, length (BE16 = 28), 13 BE16 data words, BE16 checksum
// over the first 30 bytes.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) != FrameSize {
		return Frame{}, fmt.Errorf("%w: invalid frame size: expected %d bytes, got %d", ErrTransient, FrameSize, len(b))
	}
	if b[0] != frameStart1 || b[1] != frameStart2 {
		return Frame{}, fmt.Errorf("%w: invalid start of frame: % x", ErrTransient, b[:2])
	}

	if n := binary.BigEndian.Uint16(b[2:4]); n != frameLength {
		return Frame{}, fmt.Errorf("%w: invalid frame length: %d", ErrTransient, n)
	}

	want := binary.BigEndian.Uint16(b[checksumOffset:])
	if got := checksum(b[:checksumOffset]); got != want {
		return Frame{}, fmt.Errorf("%w: checksum mismatch: got 0x%04x, want 0x%04x", ErrTransient, got, want)
	}

	var f Frame
	for i, w := range f.words() {
		*w = binary.BigEndian.Uint16(b[4+2*i:])
	}
	return f, nil
}

// Bytes encodes the frame with a valid header and checksum.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	b[0], b[1] = frameStart1, frameStart2
	binary.BigEndian.PutUint16(b[2:], frameLength)
	for i, w := range f.words() {
		binary.BigEndian.PutUint16(b[4+2*i:], *w)
	}
	binary.BigEndian.PutUint16(b[checksumOffset:], checksum(b[:checksumOffset]))
	return b
}

func checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// readFrame hunts for the two start bytes and reads the remainder of one
// frame. A lone 0x42 inside leftover data is skipped.
func readFrame(r io.Reader) (Frame, error) {
	var buf [FrameSize]byte

	found := false
	var prev byte
	for n := 0; n < maxHuntBytes; n++ {
		if err := readFull(r, buf[:1]); err != nil {
			return Frame{}, fmt.Errorf("%w: no start of frame: %w", ErrTransient, err)
		}
		if prev == frameStart1 && buf[0] == frameStart2 {
			found = true
			break
		}
		prev = buf[0]
	}
	if !found {
		return Frame{}, fmt.Errorf("%w: no start of frame within %d bytes", ErrTransient, maxHuntBytes)
	}

	buf[0], buf[1] = frameStart1, frameStart2
	if err := readFull(r, buf[2:]); err != nil {
		return Frame{}, fmt.Errorf("%w: incomplete frame: %w", ErrTransient, err)
	}

	return ParseFrame(buf[:])
}

// readFull is io.ReadFull for ports that signal a read timeout with (0, nil).
// Running out of data is io.ErrUnexpectedEOF; any other read error is a port
// fault.
func readFull(r io.Reader, p []byte) error {
	for off := 0; off < len(p); {
		n, err := r.Read(p[off:])
		if err != nil && !errors.Is(err, io.EOF) {
			return portFault(err)
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		off += n
	}
	return nil
}
