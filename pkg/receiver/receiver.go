// Package receiver holds the shared decoder contract and the binary/line
// parsing helpers common to every vendor log format: hex payload decoding,
// "MSGID HH:MM:SS HEXPAYLOAD" line splitting, the per-second accumulator and
// the post-load interpolation/ms-ambiguity pass (spec.md §4.1, L4).
package receiver

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/lsq"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
)

// DecodeResult is everything one receiver log decode produces, consumed by
// pkg/pairing, pkg/cggtts and pkg/rinex (spec.md §4.1 "post-load pass").
type DecodeResult struct {
	LinesRead          int
	Receivers          []*measurement.ReceiverMeasurement
	Counters           []*measurement.CounterMeasurement
	StoreBySystem      map[gnss.System]*ephstore.Store
	MJD                int
	Iono               ephstore.IonoCorr
	MSAmbiguityDropped map[gnss.System]int
}

// Decoder is the contract every vendor sub-package implements.
type Decoder interface {
	Decode() (*DecodeResult, error)
}

// NewResult returns a zero-valued DecodeResult with its maps initialised,
// used by every vendor decoder as its starting accumulator.
func NewResult() *DecodeResult {
	return &DecodeResult{
		StoreBySystem:      make(map[gnss.System]*ephstore.Store),
		MSAmbiguityDropped: make(map[gnss.System]int),
	}
}

// Line is one parsed "MSGID HH:MM:SS HEXPAYLOAD" log line (spec.md §4.1
// step i), the common shape of every supported vendor's ASCII-wrapped log.
type Line struct {
	MsgID   string
	HH, MM, SS int
	Payload []byte
}

// ParseLine splits a raw log line of the form "MSGID HH:MM:SS HEXPAYLOAD"
// and hex-decodes the payload. Lines that don't match this shape (blank
// lines, vendor banners, comments) return an error so the caller can skip
// them without treating every non-conforming line as fatal.
func ParseLine(raw string) (Line, error) {
	fields := strings.Fields(raw)
	if len(fields) < 3 {
		return Line{}, fmt.Errorf("receiver: line %q: expected at least 3 fields", raw)
	}
	hh, mm, ss, err := parseHMS(fields[1])
	if err != nil {
		return Line{}, fmt.Errorf("receiver: line %q: %w", raw, err)
	}
	payload, err := hex.DecodeString(fields[2])
	if err != nil {
		return Line{}, fmt.Errorf("receiver: line %q: decoding hex payload: %w", raw, err)
	}
	return Line{MsgID: fields[0], HH: hh, MM: mm, SS: ss, Payload: payload}, nil
}

func parseHMS(s string) (hh, mm, ss int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("timestamp %q not HH:MM:SS", s)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, err
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, err
	}
	ss, err = strconv.Atoi(parts[2])
	return hh, mm, ss, err
}

// ScanLines runs fn over every non-blank line of r, counting lines read and
// tolerating per-line errors the way the original's line loop does (log and
// continue, rather than aborting the whole file on one bad line).
func ScanLines(r io.Reader, fn func(raw string) error) (linesRead int, errs []error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		raw := strings.TrimRight(sc.Text(), "\r\n")
		if raw == "" {
			continue
		}
		linesRead++
		if err := fn(raw); err != nil {
			errs = append(errs, err)
		}
	}
	return linesRead, errs
}

// LEFloat64 decodes 8 little-endian bytes as an IEEE-754 double, the byte
// order used by Javad/NVS/u-blox payloads.
func LEFloat64(b []byte) (float64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("receiver: need 8 bytes for float64, got %d", len(b))
	}
	bits := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
	return math.Float64frombits(bits), nil
}

// LEFloat32 decodes 4 little-endian bytes as an IEEE-754 float.
func LEFloat32(b []byte) (float32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("receiver: need 4 bytes for float32, got %d", len(b))
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits), nil
}

// LEUint32 decodes 4 little-endian bytes as an unsigned integer.
func LEUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("receiver: need 4 bytes for uint32, got %d", len(b))
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// BEFloat64 decodes 8 big-endian bytes as an IEEE-754 double. Trimble
// Resolution boards report their binary packets byte-reversed relative to
// Javad/NVS/u-blox (spec.md §4.1 DESIGN NOTES "Trimble's byte-reversed
// doubles").
func BEFloat64(b []byte) (float64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("receiver: need 8 bytes for float64, got %d", len(b))
	}
	bits := uint64(b[7]) | uint64(b[6])<<8 | uint64(b[5])<<16 | uint64(b[4])<<24 |
		uint64(b[3])<<32 | uint64(b[2])<<40 | uint64(b[1])<<48 | uint64(b[0])<<56
	return math.Float64frombits(bits), nil
}

// NVSExtendedFloat decodes the 10-byte (80-bit) x87 extended-precision float
// NVS uses for the time-of-week field of its message 72: 64-bit mantissa
// (bytes 0-7, little-endian) plus a 16-bit sign+exponent word (bytes 8-9),
// ported from NVS.cpp's FP80toFP64. The nvs decoder reads its pseudoranges
// as FP64 and does not call this function.
func NVSExtendedFloat(b []byte) (float64, error) {
	if len(b) < 10 {
		return 0, fmt.Errorf("receiver: need 10 bytes for NVS extended float, got %d", len(b))
	}
	mantissa := uint64(0)
	for i := 7; i >= 0; i-- {
		mantissa = mantissa<<8 | uint64(b[i])
	}
	sign := 1.0
	if b[9]&0x80 != 0 {
		sign = -1.0
	}
	exponent := (int(b[9]&0x7f) << 8) + int(b[8])

	normalizeCorrection := 0.0
	if mantissa&0x8000000000000000 != 0 {
		normalizeCorrection = 1.0
	}
	mantissa &= 0x7fffffffffffffff

	return sign * math.Pow(2, float64(exponent-16383)) * (normalizeCorrection + float64(mantissa)/float64(uint64(1)<<63)), nil
}

// ResolveMSAmbiguity nudges a raw pseudorange by whole milliseconds so it
// lands within (0, 1) second and within 1ms of the supplied reference
// (spec.md §4.1 step iii "ms-ambiguity resolution"). Returns false (and
// drops the sample) if no integer-ms shift brings it within range, mirroring
// the original's "cannot resolve, discard" branch.
func ResolveMSAmbiguity(raw, reference float64) (resolved float64, ms int, ok bool) {
	for ms := -2; ms <= 2; ms++ {
		candidate := raw + float64(ms)*1e-3
		if candidate <= 0 || candidate >= 1.0 {
			continue
		}
		if math.Abs(candidate-reference) < 1e-3 {
			return candidate, ms, true
		}
	}
	return 0, 0, false
}

// InterpolateToSecond places a measurement sampled near integer-second tgt
// onto the exact second using 3-point Lagrange interpolation through the
// neighbouring samples (spec.md §4.1 step ii).
func InterpolateToSecond(ts [3]float64, vs [3]float64, tgt float64) float64 {
	return lsq.Lagrange3(ts, vs, tgt)
}
