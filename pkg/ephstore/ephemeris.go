// Package ephstore implements the per-constellation ephemeris store
// (spec.md §3 "Constellation store", §4.2) and the tagged-variant ephemeris
// model (spec.md §9 design note: "express as a tagged variant").
package ephstore

import "github.com/bipm-ttc/mktimetx/pkg/gnss"

// uraTable is the 16-entry GPS URA index -> metres table, ICD-GPS-200 Table
// 20-I, ported from the upstream `static const double *URA` GPS lookup.
var uraTable = [16]float64{
	2.4, 3.4, 4.85, 6.85, 9.65, 13.65, 24.0, 48.0,
	96.0, 192.0, 384.0, 768.0, 1536.0, 3072.0, 6144.0, 9999999.9, // index 15: no accuracy prediction available
}

// URAValue converts a GPS SV-accuracy index to metres.
func URAValue(index int) float64 {
	if index < 0 || index >= len(uraTable) {
		return uraTable[len(uraTable)-1]
	}
	return uraTable[index]
}

// Keplerian carries the broadcast orbital elements common to GPS/Galileo/BDS
// ephemerides (spec.md §3 Ephemeris "Keplerian set").
type Keplerian struct {
	SqrtA, Ecc, M0, Omega0, Omega, I0, DeltaN, OmegaDot, IDot float64
	Cuc, Cus, Crc, Crs, Cic, Cis                              float64
}

// Eph is the common interface every concrete ephemeris type satisfies
// (spec.md §9: "a small trait/interface covering svn(), t0c(), t0e(), iod(),
// week()").
type Eph interface {
	SVN() int
	T0c() float64 // clock reference time, seconds of week
	T0e() float64 // ephemeris reference time, seconds of week
	IOD() int
	Week() int
	System() gnss.System
}

// GPSEph is a GPS LNAV ephemeris.
type GPSEph struct {
	SVNNum   int
	WeekNum  int
	T0cSec   float64
	T0eSec   float64
	IODENum  int
	IODCNum  int
	Af0, Af1, Af2 float64
	Tgd      float64
	Kepler   Keplerian
	URAIndex int
	Health   int
	Logged   float64 // time-of-log, seconds of day
}

func (e *GPSEph) SVN() int           { return e.SVNNum }
func (e *GPSEph) T0c() float64       { return e.T0cSec }
func (e *GPSEph) T0e() float64       { return e.T0eSec }
func (e *GPSEph) IOD() int           { return e.IODENum }
func (e *GPSEph) Week() int          { return e.WeekNum }
func (e *GPSEph) System() gnss.System { return gnss.SysGPS }
func (e *GPSEph) URA() float64       { return URAValue(e.URAIndex) }

// GalEph is a Galileo INAV ephemeris, completed once all of words 1-5 have
// been received (bitmap 0x1f, spec.md §3 "Galileo INAV-specific").
type GalEph struct {
	SVNNum  int
	WeekNum int
	T0cSec  float64
	T0eSec  float64
	IODnav  int
	Af0, Af1, Af2 float64
	BGDE1E5a, BGDE1E5b float64
	SISA    float64
	Kepler  Keplerian
	SignalHealth int
	WordBitmap   int // 0x1f when subframes 1-5 complete
	Logged  float64
}

func (e *GalEph) SVN() int            { return e.SVNNum }
func (e *GalEph) T0c() float64        { return e.T0cSec }
func (e *GalEph) T0e() float64        { return e.T0eSec }
func (e *GalEph) IOD() int            { return e.IODnav }
func (e *GalEph) Week() int           { return e.WeekNum }
func (e *GalEph) System() gnss.System { return gnss.SysGAL }
func (e *GalEph) Complete() bool      { return e.WordBitmap == 0x1f }

// BdsEph is a BeiDou (D1/D2) ephemeris, carried for code-selection plumbing
// only (spec.md §1 Non-goals; SPEC_FULL.md §4 supplemented feature).
type BdsEph struct {
	SVNNum  int
	WeekNum int
	T0cSec  float64
	T0eSec  float64
	AODE    int
	Af0, Af1, Af2 float64
	Kepler  Keplerian
}

func (e *BdsEph) SVN() int            { return e.SVNNum }
func (e *BdsEph) T0c() float64        { return e.T0cSec }
func (e *BdsEph) T0e() float64        { return e.T0eSec }
func (e *BdsEph) IOD() int            { return e.AODE }
func (e *BdsEph) Week() int           { return e.WeekNum }
func (e *BdsEph) System() gnss.System { return gnss.SysBDS }

// GloEph is a GLONASS ephemeris, carried for code-selection plumbing only
// (SPEC_FULL.md §4).
type GloEph struct {
	SlotNum int // frequency-channel slot number, stands in for SVN/IOD
	TimeFrame float64
	X, Y, Z, Vx, Vy, Vz, Ax, Ay, Az float64
	TauN, GammaN float64
}

func (e *GloEph) SVN() int            { return e.SlotNum }
func (e *GloEph) T0c() float64        { return e.TimeFrame }
func (e *GloEph) T0e() float64        { return e.TimeFrame }
func (e *GloEph) IOD() int            { return int(e.TimeFrame) % 1440 }
func (e *GloEph) Week() int           { return 0 }
func (e *GloEph) System() gnss.System { return gnss.SysGLO }
