package cggtts

import (
	"math"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/geodetic"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/lsq"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
)

// Version selects the CGGTTS track-fitting engine (spec.md §4.5).
type Version int

// Supported CGGTTS versions.
const (
	V1 Version = iota
	V2E
)

// Config configures one CGGTTS output (one (constellation, code) combination,
// spec.md §6 per-output config block).
type Config struct {
	Version         Version
	Constellation   gnss.System
	Code1, Code2    gnss.Code // Code2 set only for dual-frequency (P3) combinations
	IsP3            bool
	UseMSIO         bool
	UseTIC          bool
	MinTrackLength  int     // seconds, typically 390
	MinElevationDeg float64 // degrees, typically 10
	MaxDSGns        float64 // ns, typically 10
	MaxURA          float64 // metres
	MeasurementDelayNs float64 // ppsOffset + intDly + cabDly - refDly, in ns
	HardwareChannel int
	FRC             string
}

// Stats accumulates the per-run diagnostics the original logs at the end of
// writeObservationFile (spec.md §7/§6).
type Stats struct {
	GoodTracks, LowElevation, HighDSG, ShortTrack int
	EphemerisMisses, PseudorangeFailures, BadMeasurements int
}

// Track is one fitted, accepted CGGTTS track line (spec.md §3 "CGGTTS track").
type Track struct {
	SV              int
	Constellation   gnss.System
	MJD             int
	StartHour, StartMinute int
	TrackLengthS    int
	ElevationX10    int
	AzimuthX10      int
	RefSVX10, SRSVX10Tenths int
	RefSYSX10       int
	SRSYSX10Tenths  int
	DSGX10          int
	IOE             int
	MDTRX10, SMDTX10000 int
	MDIOX10, SMDIX10000 int
	HasMSIO         bool
	MSIOX10, SMSIX10000, ISGX10 int
	HardwareChannel int
	FRC             string
}

const linFitIntervalV1 = 15
const linFitIntervalV2E = 30

// sampleSeries accumulates one SV's per-track time series before the final
// linear fit, mirroring the refsv/refsys/mdtr/mdio/tutc/svaz/svel arrays in
// the original writeObservationFile.
type sampleSeries struct {
	tutc, svaz, svel, mdtr, mdio, refsv, refsys, msio []float64
}

// FitTracks runs the full schedule -> gather -> fit -> filter pipeline for
// one day and one (constellation, code) config, returning the accepted
// tracks and the rejection/diagnostic counters.
func FitTracks(pairs *[pairingSlots]measurement.Pair, cfg Config, store *ephstore.Store, ant geodetic.Antenna,
	iono ephstore.IonoCorr, mjd int, startTime, stopTime int, leapSeconds int) ([]Track, Stats) {

	var stats Stats
	schedule := Schedule(mjd)
	windows := TrackWindows(schedule, startTime, stopTime)

	antECEF := geodetic.ECEF{X: ant.X, Y: ant.Y, Z: ant.Z}
	antGeo := geodetic.Geodetic{Lat: ant.Latitude, Lon: ant.Longitude, Height: ant.Height}

	var tracks []Track

	for _, w := range windows {
		bySV := gatherWindow(pairs, w, cfg.Constellation, cfg.Code1, cfg.Code2, cfg.IsP3)

		for sv, obs := range bySV {
			var series sampleSeries
			var ioe int
			var npts int
			var linFitInterval int

			if cfg.Version == V1 {
				linFitInterval = linFitIntervalV1
				npts, ioe = fitV1(obs, w, store, antECEF, antGeo, iono, cfg, leapSeconds, &series, &stats)
			} else {
				linFitInterval = linFitIntervalV2E
				npts, ioe = fitV2E(obs, w, store, antECEF, antGeo, iono, cfg, &series, &stats)
			}

			if npts*linFitInterval < cfg.MinTrackLength {
				stats.ShortTrack++
				continue
			}

			tc := float64(w.StartSecond+w.StopSecond) / 2.0
			track, ok := buildTrack(sv, cfg, series, npts, ioe, tc, mjd, w)
			if !ok {
				if track.ElevationX10 < int(cfg.MinElevationDeg*10) {
					stats.LowElevation++
				}
				if track.DSGX10 > int(cfg.MaxDSGns*10) {
					stats.HighDSG++
				}
				continue
			}
			stats.GoodTracks++
			tracks = append(tracks, track)
		}
	}

	return tracks, stats
}

const pairingSlots = 86400

// obsPoint is one epoch's code1 observation, plus its matching code2
// observation when the config asks for a dual-frequency (P3) combination.
type obsPoint struct {
	m1, m2 *measurement.SvMeasurement
}

func gatherWindow(pairs *[pairingSlots]measurement.Pair, w TrackWindow, sys gnss.System, code1, code2 gnss.Code, isP3 bool) map[int][]obsPoint {
	bySV := make(map[int][]obsPoint)
	for t := w.StartSecond; t <= w.StopSecond && t < pairingSlots; t++ {
		p := pairs[t]
		if !p.Matched() {
			continue
		}
		for _, svm := range p.Receiver.SV {
			if svm.Constellation != sys || svm.Code != code1 {
				continue
			}
			pt := obsPoint{m1: svm}
			if isP3 {
				var m2 *measurement.SvMeasurement
				for _, other := range p.Receiver.SV {
					if other.SVN == svm.SVN && other.Code == code2 {
						m2 = other
						break
					}
				}
				if m2 == nil {
					continue
				}
				pt.m2 = m2
			}
			bySV[int(svm.SVN)] = append(bySV[int(svm.SVN)], pt)
		}
	}
	return bySV
}

// freqRatioSquared is (f1/f2)^2 for the GPS L1/L2 carrier pair, used to form
// the ionosphere-free dual-frequency combination for the MSIO computation
// (spec.md §3 "MSIO (measured ionospheric delay)").
const freqRatioSquared = (1575.42 / 1227.60) * (1575.42 / 1227.60)

// dualFreqIonoNs returns the code1-frequency ionospheric delay (ns) implied
// by the raw code1/code2 pseudoranges (s), via the standard ionosphere-free
// linear combination.
func dualFreqIonoNs(pr1, pr2 float64) float64 {
	ionoFree := (freqRatioSquared*pr1 - pr2) / (freqRatioSquared - 1)
	return (pr1 - ionoFree) * 1e9
}

// fitV1 partitions the track into 52 consecutive 15s segments, quadratic
// sub-fitting pseudorange and TIC reading in each segment with >7 samples,
// then computes pseudorange corrections for each sub-fit sample (spec.md
// §4.5 "V1 (quadratic sub-fits)").
func fitV1(obs []obsPoint, w TrackWindow, store *ephstore.Store, antECEF geodetic.ECEF,
	antGeo geodetic.Geodetic, iono ephstore.IonoCorr, cfg Config, leapSeconds int, series *sampleSeries, stats *Stats) (npts int, ioe int) {

	bySecond := make(map[int]obsPoint, len(obs))
	for _, pt := range obs {
		secUTC := pt.m1.RM.TimeUTC.Hour()*3600 + pt.m1.RM.TimeUTC.Minute()*60 + pt.m1.RM.TimeUTC.Second()
		bySecond[secUTC] = pt
	}

	var qtutc, qprange, qrefpps, qprange2 []float64
	var ed ephstore.Eph
	wantCode2 := cfg.IsP3

	t := w.StartSecond
	for t <= w.StopSecond {
		if pt, ok := bySecond[t]; ok {
			rm := pt.m1.RM
			refpps := 0.0
			if cfg.UseTIC && rm.Counter != nil {
				refpps = (rm.Counter.Reading + rm.Sawtooth) * 1e9
			}
			qrefpps = append(qrefpps, refpps)
			qprange = append(qprange, pt.m1.Value)
			qtutc = append(qtutc, float64(t))
			if wantCode2 && pt.m2 != nil {
				qprange2 = append(qprange2, pt.m2.Value)
			}
		}
		t++

		if (t-w.StartSecond)%15 == 0 || (t-w.StartSecond) == TrackPointsPerTrack {
			if len(qtutc) > 7 {
				tc := float64(t-1) - 7
				var uncorrPR, refPPS float64
				if fit, err := lsq.Quadratic(qtutc, qprange, tc); err == nil {
					uncorrPR = fit.ValueAtCentre
				}
				if fit, err := lsq.Quadratic(qtutc, qrefpps, tc); err == nil {
					refPPS = fit.ValueAtCentre
				}
				var msio float64
				haveMSIO := false
				if wantCode2 && len(qprange2) == len(qprange) && len(qprange2) > 0 {
					if fit, err := lsq.Quadratic(qtutc, qprange2, tc); err == nil {
						msio = dualFreqIonoNs(uncorrPR, fit.ValueAtCentre)
						haveMSIO = true
					}
				}

				svForGPSTOW := obs[0].m1
				gpsTOW := svForGPSTOW.RM.GPSTow + (tc - float64(w.StartSecond))

				if ed == nil {
					ed = store.Nearest(int(svForGPSTOW.SVN), gpsTOW, cfg.MaxURA)
				}
				appendCorrectedSample(ed, gpsTOW, uncorrPR, refPPS, tc, msio, haveMSIO, antECEF, antGeo, iono, cfg, series, stats, &ioe)
			}
			qtutc, qprange, qrefpps, qprange2 = nil, nil, nil, nil
		}
	}

	return len(series.tutc), ioe
}

// fitV2E selects the 30s-spaced samples directly, optionally computing MSIO
// from the dual-frequency combination (spec.md §4.5 "V2E (30s decimation)").
func fitV2E(obs []obsPoint, w TrackWindow, store *ephstore.Store, antECEF geodetic.ECEF,
	antGeo geodetic.Geodetic, iono ephstore.IonoCorr, cfg Config, series *sampleSeries, stats *Stats) (npts int, ioe int) {

	bySecond := make(map[int]obsPoint, len(obs))
	for _, pt := range obs {
		secUTC := pt.m1.RM.TimeUTC.Hour()*3600 + pt.m1.RM.TimeUTC.Minute()*60 + pt.m1.RM.TimeUTC.Second()
		bySecond[secUTC] = pt
	}

	var ed ephstore.Eph
	tsearch := w.StartSecond
	for tsearch <= w.StopSecond {
		pt, ok := bySecond[tsearch]
		if !ok {
			tsearch += 30
			continue
		}
		rm := pt.m1.RM
		if ed == nil {
			ed = store.Nearest(int(pt.m1.SVN), rm.GPSTow, cfg.MaxURA)
		}

		refpps := 0.0
		if cfg.UseTIC && rm.Counter != nil {
			refpps = (rm.Counter.Reading + rm.Sawtooth) * 1e9
		}

		var msio float64
		haveMSIO := false
		if cfg.IsP3 && pt.m2 != nil {
			msio = dualFreqIonoNs(pt.m1.Value, pt.m2.Value)
			haveMSIO = true
		}

		appendCorrectedSample(ed, rm.GPSTow, pt.m1.Value, refpps, float64(tsearch), msio, haveMSIO, antECEF, antGeo, iono, cfg, series, stats, &ioe)
		tsearch += 30
	}

	return len(series.tutc), ioe
}

func appendCorrectedSample(ed ephstore.Eph, gpsTOW, pr, refpps, tutc, msio float64, haveMSIO bool, antECEF geodetic.ECEF, antGeo geodetic.Geodetic,
	iono ephstore.IonoCorr, cfg Config, series *sampleSeries, stats *Stats, ioe *int) {

	if ed == nil {
		stats.EphemerisMisses++
		return
	}
	g, ok := ed.(*ephstore.GPSEph)
	if !ok {
		stats.EphemerisMisses++
		return
	}

	corr, err := ephstore.GetPseudorangeCorrections(gpsTOW, pr, antECEF, antGeo, g.Kepler, g.T0eSec,
		g.Af0, g.Af1, g.Af2, g.Tgd, g.IODENum, cfg.Code1 == gnss.C2P, iono)
	if err != nil {
		stats.PseudorangeFailures++
		return
	}

	*ioe = g.IODENum
	series.tutc = append(series.tutc, tutc)
	series.svaz = append(series.svaz, corr.Azimuth)
	series.svel = append(series.svel, corr.Elevation)
	series.mdtr = append(series.mdtr, corr.Tropo)
	series.mdio = append(series.mdio, corr.Iono)
	series.refsv = append(series.refsv, pr*1e9+corr.RefSV-corr.Iono-corr.Tropo+refpps)
	series.refsys = append(series.refsys, pr*1e9+corr.RefSYS-corr.Iono-corr.Tropo+refpps)
	if haveMSIO {
		series.msio = append(series.msio, msio)
	}
}

func buildTrack(sv int, cfg Config, s sampleSeries, npts, ioe int, tc float64, mjd int, w TrackWindow) (Track, bool) {
	azFit, _ := lsq.Linear(s.tutc, s.svaz, tc)
	elFit, _ := lsq.Linear(s.tutc, s.svel, tc)
	mdtrFit, _ := lsq.Linear(s.tutc, s.mdtr, tc)
	refsvFit, _ := lsq.Linear(s.tutc, s.refsv, tc)
	refsysFit, _ := lsq.Linear(s.tutc, s.refsys, tc)
	mdioFit, _ := lsq.Linear(s.tutc, s.mdio, tc)

	eltc := math.Round(elFit.ValueAtCentre * 10)

	refsvTC := math.Round((refsvFit.ValueAtCentre - cfg.MeasurementDelayNs) * 10)
	refsvM := clamp(math.Round(refsvFit.Slope*10000), -99999, 99999)

	refsysTC := math.Round((refsysFit.ValueAtCentre - cfg.MeasurementDelayNs) * 10)
	refsysM := clamp(math.Round(refsysFit.Slope*10000), -99999, 99999)
	refsysResid := math.Min(math.Round(refsysFit.ResidualRMS*10), 9999)

	track := Track{
		SV:            sv,
		Constellation: cfg.Constellation,
		MJD:           mjd,
		StartHour:     w.StartMinute / 60,
		StartMinute:   w.StartMinute % 60,
		TrackLengthS:  npts * linFitIntervalFor(cfg),
		ElevationX10:  int(eltc),
		AzimuthX10:    int(math.Round(azFit.ValueAtCentre * 10)),
		RefSVX10:      int(refsvTC),
		SRSVX10Tenths: int(refsvM),
		RefSYSX10:     int(refsysTC),
		SRSYSX10Tenths: int(refsysM),
		DSGX10:        int(refsysResid),
		IOE:           ioe,
		MDTRX10:       int(math.Round(mdtrFit.ValueAtCentre * 10)),
		SMDTX10000:    int(math.Round(mdtrFit.Slope * 10000)),
		MDIOX10:       int(math.Round(mdioFit.ValueAtCentre * 10)),
		SMDIX10000:    int(math.Round(mdioFit.Slope * 10000)),
		HardwareChannel: cfg.HardwareChannel,
		FRC:           cfg.FRC,
	}

	if cfg.UseMSIO && len(s.msio) == len(s.tutc) && len(s.msio) > 0 {
		msioFit, _ := lsq.Linear(s.tutc, s.msio, tc)
		track.HasMSIO = true
		track.MSIOX10 = int(math.Round(msioFit.ValueAtCentre * 10))
		track.SMSIX10000 = int(math.Round(msioFit.Slope * 10000))
		track.ISGX10 = int(math.Round(msioFit.ResidualRMS * 10))
	}

	ok := float64(track.ElevationX10) >= cfg.MinElevationDeg*10 && float64(track.DSGX10) <= cfg.MaxDSGns*10
	return track, ok
}

func linFitIntervalFor(cfg Config) int {
	if cfg.Version == V1 {
		return linFitIntervalV1
	}
	return linFitIntervalV2E
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
