package cggtts

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/geodetic"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_HasExpectedTrackCount(t *testing.T) {
	s := Schedule(58849)
	assert.GreaterOrEqual(t, len(s), NumTracks)
	for i := 1; i < len(s); i++ {
		assert.GreaterOrEqual(t, s[i], s[i-1])
	}
}

func TestTrackWindows_RejectsOutsideRequestedSpan(t *testing.T) {
	schedule := Schedule(58849)
	windows := TrackWindows(schedule, 0, 3599) // only the first hour
	for _, w := range windows {
		assert.LessOrEqual(t, w.StartSecond, 3599)
	}
	assert.Less(t, len(windows), len(schedule))
}

// Checksum correctness: the trailing byte on a track line is the mod-256 sum
// of the ASCII codes of every character preceding it on that line.
func TestChecksum_ModularSumOfAllPrecedingCharacters(t *testing.T) {
	line := "G99 00 58849 000243  780  10  180   123456789    -12    123456789    -12  0042 123  002   00  001   00 9999 9999 999 1 00 L3P"
	var want int
	for _, r := range line {
		want += int(r)
	}
	want %= 256
	assert.Equal(t, byte(want), checksum(line))
}

func TestWriteHeader_CksumCoversExactlyThePrecedingLines(t *testing.T) {
	hc := HeaderConfig{
		Version:    "2E",
		RevDate:    "2024-01-01",
		ReceiverID: "TEST RECEIVER",
		Channel:    "1",
		IMS:        "99999",
		Lab:        "TEST LAB",
		Antenna:    geodetic.Antenna{X: 4000000, Y: 200000, Z: 4800000},
		Frame:      "ITRF",
		Comments:   "NO COMMENTS",
		IntDelayNs: 0, CabDelayNs: 0, RefDelayNs: 0,
		RefName: "UTC(TEST)",
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteHeader(w, hc))
	require.NoError(t, w.Flush())

	lines := strings.Split(buf.String(), "\n")

	var cksumLine string
	var preceding []string
	for _, l := range lines {
		if strings.HasPrefix(l, "CKSUM = ") {
			cksumLine = l
			break
		}
		preceding = append(preceding, l)
	}
	require.NotEmpty(t, cksumLine)

	want := checksum(preceding...)
	gotVal, err := strconv.ParseUint(strings.TrimPrefix(cksumLine, "CKSUM = "), 16, 8)
	require.NoError(t, err)
	assert.Equal(t, want, byte(gotVal))
}

func TestWriteTrack_LineEndsWithTwoHexDigitChecksum(t *testing.T) {
	track := Track{
		SV: 5, Constellation: gnss.SysGPS, MJD: 58849,
		StartHour: 0, StartMinute: 4, TrackLengthS: 780,
		ElevationX10: 245, AzimuthX10: 1800,
		RefSVX10: 123456, SRSVX10Tenths: -12,
		RefSYSX10: 123789, SRSYSX10Tenths: -8,
		DSGX10: 42, IOE: 123,
		MDTRX10: 20, SMDTX10000: 0, MDIOX10: 10, SMDIX10000: 0,
		HardwareChannel: 0, FRC: "L3P",
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteTrack(w, track, "G"))
	require.NoError(t, w.Flush())

	out := strings.TrimRight(buf.String(), "\n")
	tail := out[len(out)-2:]
	_, err := strconv.ParseUint(tail, 16, 8)
	assert.NoError(t, err)
}

// Matched, single-SV GPS pseudorange samples at 1 Hz over the day's first
// scheduled track window should fit and classify into one of the
// accept/reject buckets without any ephemeris or pseudorange-sanity failure.
func TestFitTracks_SingleTrackClassifiedCleanly(t *testing.T) {
	k := ephstore.Keplerian{SqrtA: 5153.7, I0: 55 * math.Pi / 180}

	ant := geodetic.Antenna{X: 6378137, Y: 0, Z: 0}
	ant.Configure()

	var pairs [86400]measurement.Pair
	schedule := Schedule(58849)
	windows := TrackWindows(schedule, 0, 86399)
	require.NotEmpty(t, windows)
	w := windows[0]

	// Store.Nearest requires a non-negative (T0e - tow); placing T0e just
	// past the track window keeps every sample's tow within the lookup's
	// 0.1-day acceptance radius.
	t0e := float64(w.StopSecond + 1)
	eph := &ephstore.GPSEph{SVNNum: 1, WeekNum: 0, T0cSec: t0e, T0eSec: t0e, IODENum: 10, Kepler: k}
	store := ephstore.NewStore()
	store.Add(eph)

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for s := w.StartSecond; s <= w.StopSecond; s++ {
		// Light-time iteration: GetPseudorangeCorrections evaluates the
		// satellite position at transmission time (gpsTOW - pr), so the
		// synthetic pseudorange must be built the same way to satisfy its
		// range sanity check.
		pr := 0.075
		for i := 0; i < 3; i++ {
			pos, _, err := ephstore.SatXYZ(k, t0e, float64(s)-pr)
			require.NoError(t, err)
			pr = geometricPseudorange(pos, geodetic.ECEF{X: ant.X, Y: ant.Y, Z: ant.Z})
		}

		ts := base.Add(time.Duration(s) * time.Second)
		rm := &measurement.ReceiverMeasurement{GPSTow: float64(s), TimeUTC: ts, PCTime: ts}
		svm := &measurement.SvMeasurement{Constellation: gnss.SysGPS, SVN: 1, Code: gnss.C1C, Value: pr, RM: rm}
		rm.SV = []*measurement.SvMeasurement{svm}
		c := &measurement.CounterMeasurement{HH: ts.Hour(), MM: ts.Minute(), SS: ts.Second()}
		rm.Counter = c
		pairs[s] = measurement.Pair{Flags: measurement.FlagHasCounter | measurement.FlagHasReceiver, Counter: c, Receiver: rm}
	}

	cfg := Config{
		Version: V2E, Constellation: gnss.SysGPS, Code1: gnss.C1C,
		MinTrackLength: 390, MinElevationDeg: 0, MaxDSGns: 1e6, MaxURA: 0,
	}

	tracks, stats := FitTracks(&pairs, cfg, store, ant, ephstore.IonoCorr{}, 58849, 0, 86399, 0)
	assert.Zero(t, stats.EphemerisMisses)
	assert.Zero(t, stats.PseudorangeFailures)
	assert.Equal(t, stats.GoodTracks, len(tracks))
}

func geometricPseudorange(pos geodetic.ECEF, ant geodetic.ECEF) float64 {
	dx, dy, dz := pos.X-ant.X, pos.Y-ant.Y, pos.Z-ant.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	const cLight = 299792458.0
	return dist / cLight
}
