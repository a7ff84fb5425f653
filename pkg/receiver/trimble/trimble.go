// Package trimble decodes Trimble Resolution-series receiver logs. Trimble
// packets report a leading report-code byte (and, for report 0x8F, a
// subcode byte) followed by big-endian ("byte-reversed" relative to the
// other vendors) binary fields (spec.md §4.1, grounded on
// TrimbleResolution.cpp).
package trimble

import (
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

const (
	reportTiming  = 0x8f
	subcodePrimary = 0xab
	reportRawMeas = 0x5a
)

// Decoder decodes one Trimble Resolution log file. It satisfies
// receiver.Decoder.
type Decoder struct {
	path string
}

// NewDecoder returns a Decoder for the Trimble log at path.
func NewDecoder(path string) (*Decoder, error) {
	return &Decoder{path: path}, nil
}

type epochState struct {
	gpsTOW       uint32
	gpsWN        uint16
	hh, mm, ss   int
	mday, mon    int
	year         int
	rxTimeOffset float64
	sawtooth     float64
	timeValid    bool
	meas         []*measurement.SvMeasurement
}

// Decode reads the whole log and returns its accumulated result.
func (d *Decoder) Decode() (*receiver.DecodeResult, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("trimble: opening %s: %w", d.path, err)
	}
	defer f.Close()

	result := receiver.NewResult()
	st := &epochState{}

	linesRead, errs := receiver.ScanLines(f, func(raw string) error {
		if raw[0] == '#' || raw[0] == '%' || raw[0] == '@' {
			return nil
		}
		ln, err := receiver.ParseLine(raw)
		if err != nil {
			return nil
		}
		if len(ln.Payload) == 0 {
			return nil
		}
		switch ln.Payload[0] {
		case reportTiming:
			return d.decode8F(ln, st, result)
		case reportRawMeas:
			return d.decode5A(ln, st)
		}
		return nil
	})
	result.LinesRead = linesRead
	if len(errs) > 0 {
		log.Printf("trimble: %s: %d lines rejected (first: %v)", d.path, len(errs), errs[0])
	}
	return result, nil
}

// decode8F handles report 0x8F; only subcode 0xAB (primary timing) is
// decoded. It flushes the previous second's accumulated measurements before
// parsing the new timing fields, mirroring the original's "8fab starts a
// new second" structure.
func (d *Decoder) decode8F(ln receiver.Line, st *epochState, result *receiver.DecodeResult) error {
	if len(ln.Payload) < 2 || ln.Payload[1] != subcodePrimary {
		return nil
	}
	if len(ln.Payload) < 18 {
		return fmt.Errorf("trimble: 8FAB wrong size")
	}

	d.flush(st, result)

	flagsByte := ln.Payload[10]
	if flagsByte&0x04 != 0 {
		st.timeValid = false
		st.meas = nil
		return nil
	}
	st.timeValid = true
	st.meas = nil

	gpstow, err := beUint32(ln.Payload[2:6])
	if err != nil {
		return err
	}
	gpswn, err := beUint16(ln.Payload[6:8])
	if err != nil {
		return err
	}
	st.gpsTOW = gpstow
	st.gpsWN = gpswn
	st.ss = int(ln.Payload[11])
	st.mm = int(ln.Payload[12])
	st.hh = int(ln.Payload[13])
	st.mday = int(ln.Payload[14])
	st.mon = int(ln.Payload[15])
	st.year = int(uint16(ln.Payload[16])<<8 | uint16(ln.Payload[17]))
	return nil
}

// decode5A handles report 0x5A (raw measurement), one per tracked SV.
func (d *Decoder) decode5A(ln receiver.Line, st *epochState) error {
	if !st.timeValid {
		return nil
	}
	if len(ln.Payload) < 14 {
		return fmt.Errorf("trimble: 5A wrong size")
	}
	svn := ln.Payload[1]
	if svn > 32 {
		return nil // non-GPS, not currently decoded
	}
	pr, err := beFloat32(ln.Payload[10:14])
	if err != nil {
		return err
	}
	if len(st.meas) >= 16 {
		return fmt.Errorf("trimble: too many 5A messages")
	}
	st.meas = append(st.meas, &measurement.SvMeasurement{
		Constellation: gnss.SysGPS,
		SVN:           int8(svn),
		Code:          gnss.C1C,
		Value:         float64(pr),
	})
	return nil
}

func (d *Decoder) flush(st *epochState, result *receiver.DecodeResult) {
	if !st.timeValid || len(st.meas) == 0 {
		return
	}
	rm := &measurement.ReceiverMeasurement{
		GPSTow:         float64(st.gpsTOW),
		GPSWeek:        int(st.gpsWN),
		Sawtooth:       -st.sawtooth,
		ReceiverOffset: st.rxTimeOffset,
		TimeUTC:        time.Date(st.year, time.Month(st.mon), st.mday, st.hh, st.mm, st.ss, 0, time.UTC),
		PCTime:         time.Date(0, 1, 1, st.hh, st.mm, st.ss, 0, time.UTC),
	}
	for _, svm := range st.meas {
		svm.RM = rm
		svm.Value += st.rxTimeOffset * 1e-9
		rm.SV = append(rm.SV, svm)
	}
	result.Receivers = append(result.Receivers, rm)
	st.meas = nil
}

func beUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("trimble: need 4 bytes, got %d", len(b))
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func beUint16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("trimble: need 2 bytes, got %d", len(b))
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func beFloat32(b []byte) (float32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("trimble: need 4 bytes, got %d", len(b))
	}
	bits := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return math.Float32frombits(bits), nil
}
