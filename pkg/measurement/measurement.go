// Package measurement holds the common measurement model shared by every
// receiver decoder: SvMeasurement, ReceiverMeasurement, CounterMeasurement
// and MeasurementPair (spec.md §3).
package measurement

import (
	"fmt"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/gnss"
)

// InterpState replaces the original's dbuf1/dbuf2/uibuf scratch fields
// (spec.md §9 design note) with an explicit struct used only during the
// interpolation/ms-ambiguity passes.
type InterpState struct {
	RawPseudorange  float64 // the un-interpolated sample, before Lagrange placement
	MSAmbiguity     int     // integer millisecond correction applied
	ArcStartIndex   int     // index of the first sample of this SV's interpolation arc
}

// SvMeasurement is one signal observation from one SV at one epoch
// (spec.md §3).
type SvMeasurement struct {
	Constellation gnss.System
	SVN           int8
	Code          gnss.Code
	Value         float64 // pseudorange (s) or carrier phase (cycles)
	LossOfLock    bool
	SignalStrength int8

	Interp *InterpState // nil outside the interpolation pass

	RM *ReceiverMeasurement // back-pointer, non-owning
}

// Validate checks the SvMeasurement invariant from spec.md §3: pseudorange
// range and constellation/code compatibility.
func (m *SvMeasurement) Validate() error {
	if !m.Code.IsCarrierPhase() {
		if !(m.Value > 0 && m.Value < 1.0) {
			return fmt.Errorf("measurement: pseudorange %.9g s out of range (0,1) for SVN %d", m.Value, m.SVN)
		}
	}
	if !gnss.Compatible(m.Constellation, m.Code) {
		return fmt.Errorf("measurement: code %s not valid for constellation %s", m.Code, m.Constellation)
	}
	return nil
}

// ReceiverMeasurement is one epoch's worth of SV observations (spec.md §3).
type ReceiverMeasurement struct {
	GPSTow      float64 // GPS time-of-week, seconds (integer except positioning mode)
	GPSWeek     int     // truncated GPS week number

	TimeUTC time.Time // UTC broken-down time, as reported or derived
	TimeGPS time.Time // GPS broken-down time, as reported or derived

	FracSecs float64 // tmfracs, in [-0.5, 0.5)

	PCTime time.Time // PC-clock hh:mm:ss of the log line (date component unused)

	Sawtooth       float64 // seconds, signed, added to the counter reading
	ReceiverOffset float64 // seconds, diagnostic
	Flag           int

	SV []*SvMeasurement

	Counter *CounterMeasurement // matched counter reading, set by pairing
}

// SecondOfDay returns the PC-clock second-of-day used as the pairing key.
func (rm *ReceiverMeasurement) SecondOfDay() int {
	return rm.PCTime.Hour()*3600 + rm.PCTime.Minute()*60 + rm.PCTime.Second()
}

// String renders one epoch for diagnostics, mirroring the original
// ReceiverMeasurement dump used for debugging (spec.md §4 DESIGN NOTES
// supplemented feature).
func (rm *ReceiverMeasurement) String() string {
	return fmt.Sprintf("tow=%.0f week=%d pc=%s sawtooth=%.3gns nsv=%d",
		rm.GPSTow, rm.GPSWeek, rm.PCTime.Format("15:04:05"), rm.Sawtooth*1e9, len(rm.SV))
}

// CounterMeasurement is one 1 Hz TIC reading (spec.md §3).
type CounterMeasurement struct {
	HH, MM, SS int
	Reading    float64 // seconds, signed
}

// SecondOfDay returns the second-of-day index for this reading.
func (c *CounterMeasurement) SecondOfDay() int {
	return c.HH*3600 + c.MM*60 + c.SS
}

// Timestamp renders HH:MM:SS the way the original CounterMeasurement::timestamp did.
func (c *CounterMeasurement) Timestamp() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.HH, c.MM, c.SS)
}

// Pair flag bits (spec.md §3 MeasurementPair).
const (
	FlagHasCounter      = 0x01
	FlagHasReceiver      = 0x02
	FlagDuplicateCounter = 0x04
	FlagDuplicateReceiver = 0x08
)

// Pair is a fixed-index slot representing UTC second-of-day i (spec.md §3).
type Pair struct {
	Flags    int
	Counter  *CounterMeasurement
	Receiver *ReceiverMeasurement
}

// Matched reports whether both a counter and receiver reading are attached.
func (p *Pair) Matched() bool {
	return p.Flags&(FlagHasCounter|FlagHasReceiver) == (FlagHasCounter | FlagHasReceiver)
}
