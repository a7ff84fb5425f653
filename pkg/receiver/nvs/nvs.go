// Package nvs decodes NVS NV08C-CSM receiver logs. Messages are grouped by
// the PC-clock timestamp field rather than a start-of-epoch marker: when the
// timestamp changes, the previous second's accumulated messages are
// flushed if complete (spec.md §4.1, grounded on NVS.cpp).
package nvs

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
	msg46 = 1 << iota // time message
	msg72             // sawtooth / time-scale message
	msgF5             // raw measurements
)

const reqdMsgs = msg46 | msg72 | msgF5

// Decoder decodes one NVS log file. It satisfies receiver.Decoder.
type Decoder struct {
	path string
}

// NewDecoder returns a Decoder for the NVS log at path.
func NewDecoder(path string) (*Decoder, error) {
	return &Decoder{path: path}, nil
}

type epochState struct {
	have         int
	pctime       string
	rxTimeOffset float64
	sawtooth     float64
	gpsTOW       int
	meas         []*measurement.SvMeasurement
	duplicate    bool
}

func (e *epochState) reset() { *e = epochState{pctime: e.pctime} }

// Decode reads the whole log and returns its accumulated result.
func (d *Decoder) Decode() (*receiver.DecodeResult, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("nvs: opening %s: %w", d.path, err)
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
		pctime := fmt.Sprintf("%02d:%02d:%02d", ln.HH, ln.MM, ln.SS)
		if pctime != st.pctime && st.pctime != "" {
			d.flush(st, result)
		}
		st.pctime = pctime
		return d.dispatch(ln, st)
	})
	d.flush(st, result)
	result.LinesRead = linesRead
	if len(errs) > 0 {
		log.Printf("nvs: %s: %d lines rejected (first: %v)", d.path, len(errs), errs[0])
	}
	return result, nil
}

func (d *Decoder) dispatch(ln receiver.Line, st *epochState) error {
	switch ln.MsgID {
	case "F5":
		if st.have&msgF5 != 0 {
			st.duplicate = true
			return nil
		}
		return d.decodeF5(ln, st)
	case "72":
		if st.have&msg72 != 0 {
			st.duplicate = true
			return nil
		}
		return d.decode72(ln, st)
	case "46":
		if st.have&msg46 != 0 {
			st.duplicate = true
			return nil
		}
		return d.decode46(ln, st)
	}
	return nil
}

// decodeF5 decodes the raw-measurement message: a fixed 27-byte header (we
// only need the int8 receiver-time-offset at offset 26) followed by a
// 30-byte record per tracked SV (NVS.cpp: signal byte, SVN, FP64
// pseudorange in ms at offset 11, flags byte at offset 27 within the
// record).
func (d *Decoder) decodeF5(ln receiver.Line, st *epochState) error {
	const headerLen = 27
	const recLen = 30
	if len(ln.Payload) < headerLen || (len(ln.Payload)-headerLen)%recLen != 0 {
		return fmt.Errorf("nvs: F5 wrong size")
	}
	rxOffset := int8(ln.Payload[26])
	st.rxTimeOffset = float64(rxOffset) * 1e-3

	n := (len(ln.Payload) - headerLen) / recLen
	st.meas = st.meas[:0]
	for s := 0; s < n; s++ {
		rec := ln.Payload[headerLen+s*recLen : headerLen+(s+1)*recLen]
		signal := rec[0]
		if signal&0x02 == 0 {
			continue // not GPS
		}
		svn := rec[1]
		pr, err := receiver.LEFloat64(rec[11 : 11+8])
		if err != nil {
			return err
		}
		flags := rec[27]
		if flags&(0x01|0x02|0x04|0x10) == 0 {
			continue
		}
		st.meas = append(st.meas, &measurement.SvMeasurement{
			Constellation: gnss.SysGPS,
			SVN:           int8(svn),
			Code:          gnss.C1C,
			Value:         pr * 1e-3,
		})
	}
	if len(st.meas) >= 16 {
		return fmt.Errorf("nvs: too many F5 measurements at %s", st.pctime)
	}
	st.have |= msgF5
	return nil
}

// decode72 decodes the sawtooth correction message: a 10-byte (80-bit)
// extended-precision time-of-week value followed by a sign-flipped,
// nanosecond-scaled FP64 sawtooth correction at byte offset 21.
func (d *Decoder) decode72(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 34 {
		return fmt.Errorf("nvs: 72 wrong size")
	}
	sawtoothNs, err := receiver.LEFloat64(ln.Payload[21 : 21+8])
	if err != nil {
		return err
	}
	st.sawtooth = -sawtoothNs * 1e-9
	st.have |= msg72
	return nil
}

// decode46 decodes the time message: a 4-byte time-of-week in seconds,
// wrapped into [0, 86400).
func (d *Decoder) decode46(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 10 {
		return fmt.Errorf("nvs: 46 wrong size")
	}
	tow, err := receiver.LEUint32(ln.Payload[0:4])
	if err != nil {
		return err
	}
	st.gpsTOW = int(tow) - (int(tow)/86400)*86400
	st.have |= msg46
	return nil
}

func (d *Decoder) flush(st *epochState, result *receiver.DecodeResult) {
	defer st.reset()

	if st.have != reqdMsgs || st.duplicate || len(st.meas) == 0 {
		return
	}
	if math.Abs(st.rxTimeOffset) > 1e-6 {
		log.Printf("nvs: non-zero receiver time offset %g at %s", st.rxTimeOffset, st.pctime)
	}

	rm := &measurement.ReceiverMeasurement{
		GPSTow:   float64(st.gpsTOW),
		Sawtooth: st.sawtooth,
		FracSecs: st.rxTimeOffset,
	}
	var hh, mm, ss int
	fmt.Sscanf(st.pctime, "%d:%d:%d", &hh, &mm, &ss)
	rm.PCTime = time.Date(0, 1, 1, hh, mm, ss, 0, time.UTC)

	for _, svm := range st.meas {
		svm.RM = rm
		rm.SV = append(rm.SV, svm)
	}
	result.Receivers = append(result.Receivers, rm)
}
