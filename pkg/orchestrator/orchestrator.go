// Package orchestrator runs one end-to-end mktimetx pass: decode a receiver
// log, pair its measurements, fit CGGTTS tracks and write RINEX/CGGTTS
// output, logging a per-run process summary (spec.md §5, §6).
package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bipm-ttc/mktimetx/pkg/archive"
	"github.com/bipm-ttc/mktimetx/pkg/cggtts"
	"github.com/bipm-ttc/mktimetx/pkg/config"
	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/geodetic"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
	"github.com/bipm-ttc/mktimetx/pkg/pairing"
	"github.com/bipm-ttc/mktimetx/pkg/receiver"
	"github.com/bipm-ttc/mktimetx/pkg/receiver/javad"
	"github.com/bipm-ttc/mktimetx/pkg/receiver/nvs"
	"github.com/bipm-ttc/mktimetx/pkg/receiver/trimble"
	"github.com/bipm-ttc/mktimetx/pkg/receiver/ublox"
	"github.com/bipm-ttc/mktimetx/pkg/rinex"
	"github.com/bipm-ttc/mktimetx/pkg/timeutil"
)

// newDecoder dispatches on the configured receiver model. Each vendor
// sub-package depends on pkg/receiver for shared types, so the dispatch
// table lives here (in the caller) rather than in pkg/receiver itself, to
// avoid an import cycle.
func newDecoder(model, path string) (receiver.Decoder, error) {
	switch model {
	case "javad":
		return javad.NewDecoder(path)
	case "nvs":
		return nvs.NewDecoder(path)
	case "trimble":
		return trimble.NewDecoder(path)
	case "ublox":
		return ublox.NewDecoder(path)
	default:
		return nil, fmt.Errorf("orchestrator: unknown receiver model %q", model)
	}
}

// runIDKey is the context key under which the per-run correlation ID is
// stored, replacing the original's global debug-stream state with an
// explicit, request-scoped value (spec.md §9 design note).
type runIDKey struct{}

// WithRunID returns a context carrying a fresh per-run correlation UUID.
func WithRunID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, runIDKey{}, id), id
}

// RunIDFromContext returns the run's correlation ID, or "" if none is set.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// logf prefixes every orchestrator log line with the run's correlation ID,
// mirroring the teacher's plain log.Printf usage (pkg/rinex) but scoped per
// run instead of via a package-global logger.
func logf(ctx context.Context, format string, args ...any) {
	log.Printf("[run=%s] "+format, append([]any{RunIDFromContext(ctx)}, args...)...)
}

var (
	measurementsRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mktimetx",
		Name:      "measurements_read_total",
		Help:      "Receiver measurements read from the log, by constellation.",
	}, []string{"constellation"})

	badMeasurements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mktimetx",
		Name:      "bad_measurements_total",
		Help:      "Measurements rejected by SvMeasurement.Validate, by constellation.",
	}, []string{"constellation"})

	tracksWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mktimetx",
		Name:      "cggtts_tracks_written_total",
		Help:      "Accepted CGGTTS tracks written, by constellation and code.",
	}, []string{"constellation", "code"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mktimetx",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of one orchestrator Run.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Metrics bundles the run's counters for registration by the caller
// (SPEC_FULL.md §3 domain-stack wiring: prometheus/client_golang).
var Metrics = struct {
	MeasurementsRead *prometheus.CounterVec
	BadMeasurements  *prometheus.CounterVec
	TracksWritten    *prometheus.CounterVec
	RunDuration      prometheus.Histogram
}{measurementsRead, badMeasurements, tracksWritten, runDuration}

func init() {
	prometheus.MustRegister(measurementsRead, badMeasurements, tracksWritten, runDuration)
}

// Summary is the process-log diagnostic block written at the end of a run
// (spec.md §6: lines read, measurements read, ephemerides read, errors, bad
// measurements, ms-ambiguity drops per constellation, elapsed time).
type Summary struct {
	RunID              string
	LinesRead          int
	MeasurementsRead   int
	EphemeridesRead    int
	BadMeasurements    int
	MSAmbiguityDropped map[gnss.System]int
	PairingStats       pairing.Stats
	TracksByOutput     map[string]int
	Elapsed            time.Duration
	Errors             []error
}

// Run executes one full pass for cfg, writing whatever outputs cfg enables.
func Run(ctx context.Context, cfg *config.Config) (*Summary, error) {
	ctx, runID := WithRunID(ctx)
	start := time.Now()
	sum := &Summary{RunID: runID, MSAmbiguityDropped: make(map[gnss.System]int), TracksByOutput: make(map[string]int)}
	defer func() {
		sum.Elapsed = time.Since(start)
		runDuration.Observe(sum.Elapsed.Seconds())
		logf(ctx, "done in %s: lines=%d measurements=%d ephemerides=%d bad=%d errors=%d",
			sum.Elapsed, sum.LinesRead, sum.MeasurementsRead, sum.EphemeridesRead, sum.BadMeasurements, len(sum.Errors))
	}()

	logf(ctx, "starting run for receiver %s (%s)", cfg.ReceiverID, cfg.Receiver.Model)

	logPath, err := archive.Unwrap(cfg.Receiver.File)
	if err != nil {
		return sum, fmt.Errorf("orchestrator: %w", err)
	}
	if logPath != cfg.Receiver.File {
		defer func() {
			if rerr := archive.Rewrap(logPath); rerr != nil {
				logf(ctx, "rewrap %s after run: %v", logPath, rerr)
			}
		}()
	}

	dec, err := newDecoder(cfg.Receiver.Model, logPath)
	if err != nil {
		return sum, fmt.Errorf("orchestrator: %w", err)
	}

	result, err := dec.Decode()
	if err != nil {
		return sum, fmt.Errorf("orchestrator: decoding %s: %w", logPath, err)
	}
	sum.LinesRead = result.LinesRead
	sum.MeasurementsRead = len(result.Receivers)
	for _, s := range result.StoreBySystem {
		sum.EphemeridesRead += s.Len()
	}

	for _, rm := range result.Receivers {
		kept := rm.SV[:0]
		for _, svm := range rm.SV {
			if err := svm.Validate(); err != nil {
				sum.BadMeasurements++
				badMeasurements.WithLabelValues(svm.Constellation.Abbr()).Inc()
				continue
			}
			kept = append(kept, svm)
			measurementsRead.WithLabelValues(svm.Constellation.Abbr()).Inc()
		}
		rm.SV = kept
	}
	for sys, n := range result.MSAmbiguityDropped {
		sum.MSAmbiguityDropped[sys] += n
	}

	pairs, pstats, err := pairing.Pair(result.Counters, result.Receivers)
	if err != nil {
		return sum, fmt.Errorf("orchestrator: %w", err)
	}
	sum.PairingStats = pstats

	ant := geodetic.Antenna{X: cfg.Antenna.X, Y: cfg.Antenna.Y, Z: cfg.Antenna.Z, MarkerName: cfg.Antenna.MarkerName, Frame: cfg.Antenna.Frame}
	ant.Configure()

	mjd := result.MJD
	delayNs := cfg.Delays.IntDelayNs + cfg.Delays.CabDelayNs - cfg.Delays.RefDelayNs + cfg.Delays.PPSOffsetNs

	for _, out := range cfg.CGGTTS {
		sys, err := parseSystem(out.Constellation)
		if err != nil {
			sum.Errors = append(sum.Errors, err)
			continue
		}
		version := cggtts.V2E
		if out.Version == "V1" {
			version = cggtts.V1
		}

		fitCfg := cggtts.Config{
			Version: version, Constellation: sys,
			Code1: gnss.Code(out.Code), Code2: gnss.Code(out.Code2), IsP3: out.Code2 != "",
			UseMSIO: out.UseMSIO, UseTIC: out.UseTIC,
			MinTrackLength:  defaultInt(out.MinTrackLength, 390),
			MinElevationDeg: defaultFloat(out.MinElevationDeg, 10),
			MaxDSGns:        defaultFloat(out.MaxDSGns, 10),
			MaxURA:          out.MaxURA,
			MeasurementDelayNs: delayNs,
			HardwareChannel: out.HardwareChannel,
			FRC:             out.FRC,
		}

		store := storeFor(result, sys)
		tracks, fstats := cggtts.FitTracks(&pairs, fitCfg, store, ant, result.Iono, mjd, 0, 86399, cfg.LeapSeconds)
		sum.TracksByOutput[out.OutputFile] = len(tracks)
		tracksWritten.WithLabelValues(out.Constellation, out.Code).Add(float64(len(tracks)))
		logf(ctx, "cggtts %s/%s: %d good, %d short, %d low-elevation, %d high-dsg, %d ephemeris-miss, %d pr-fail",
			out.Constellation, out.Code, fstats.GoodTracks, fstats.ShortTrack, fstats.LowElevation, fstats.HighDSG,
			fstats.EphemerisMisses, fstats.PseudorangeFailures)

		if err := writeCGGTTS(out, cfg, tracks, sys); err != nil {
			sum.Errors = append(sum.Errors, err)
		}
	}

	if cfg.Rinex.Enabled {
		if err := writeRinex(cfg, result, pairs); err != nil {
			sum.Errors = append(sum.Errors, err)
		}
	}

	if len(sum.Errors) > 0 {
		return sum, fmt.Errorf("orchestrator: run completed with %d error(s), first: %w", len(sum.Errors), sum.Errors[0])
	}
	return sum, nil
}

func parseSystem(abbr string) (gnss.System, error) {
	switch abbr {
	case "GPS":
		return gnss.SysGPS, nil
	case "GAL":
		return gnss.SysGAL, nil
	case "BDS":
		return gnss.SysBDS, nil
	case "GLO":
		return gnss.SysGLO, nil
	default:
		return 0, fmt.Errorf("orchestrator: unknown constellation %q", abbr)
	}
}

func storeFor(result *receiver.DecodeResult, sys gnss.System) *ephstore.Store {
	if s, ok := result.StoreBySystem[sys]; ok {
		return s
	}
	return ephstore.NewStore()
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func writeCGGTTS(out config.CGGTTSOutput, cfg *config.Config, tracks []cggtts.Track, sys gnss.System) error {
	f, err := os.Create(out.OutputFile)
	if err != nil {
		return fmt.Errorf("orchestrator: creating %s: %w", out.OutputFile, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	hc := cggtts.HeaderConfig{
		Version: versionCode(out.Version), RevDate: time.Now().Format("2006-01-02"),
		ReceiverID: cfg.ReceiverID, Channel: "1", IMS: "99999", Lab: cfg.Lab,
		Antenna: geodetic.Antenna{X: cfg.Antenna.X, Y: cfg.Antenna.Y, Z: cfg.Antenna.Z},
		Frame:   cfg.Antenna.Frame, Comments: "NO COMMENTS",
		IntDelayNs: cfg.Delays.IntDelayNs, CabDelayNs: cfg.Delays.CabDelayNs, RefDelayNs: cfg.Delays.RefDelayNs,
		RefName: cfg.ReceiverID,
	}
	if err := cggtts.WriteHeader(w, hc); err != nil {
		return fmt.Errorf("orchestrator: writing cggtts header: %w", err)
	}
	prefix := sys.Abbr()
	for _, tr := range tracks {
		if err := cggtts.WriteTrack(w, tr, prefix); err != nil {
			return fmt.Errorf("orchestrator: writing cggtts track: %w", err)
		}
	}
	return nil
}

func writeRinex(cfg *config.Config, result *receiver.DecodeResult, pairs [86400]measurement.Pair) error {
	startDate := timeutil.DateFromMJD(result.MJD)

	if cfg.Rinex.ObsFile != "" {
		obsPath, err := rinexOutputPath(cfg.Rinex.ObsFile, func() (string, error) {
			return rinex.ObservationFilename(cfg.Antenna.MarkerName, startDate)
		})
		if err != nil {
			return fmt.Errorf("orchestrator: naming rinex obs file: %w", err)
		}
		if err := rinex.WriteObservationFile(obsPath, cfg.Rinex.Version, cfg.ReceiverID, cfg.Antenna.MarkerName, pairs); err != nil {
			return fmt.Errorf("orchestrator: writing rinex obs: %w", err)
		}
	}
	if cfg.Rinex.NavFile != "" {
		navPath, err := rinexOutputPath(cfg.Rinex.NavFile, func() (string, error) {
			return rinex.NavigationFilename(cfg.Antenna.MarkerName, startDate)
		})
		if err != nil {
			return fmt.Errorf("orchestrator: naming rinex nav file: %w", err)
		}
		if err := rinex.WriteNavigationFile(navPath, cfg.Rinex.Version, result.StoreBySystem); err != nil {
			return fmt.Errorf("orchestrator: writing rinex nav: %w", err)
		}
	}
	return nil
}

// rinexOutputPath resolves a configured rinex path (spec.md §6 "paths::
// rinex"): when it names an existing directory the canonical `<MARKER>
// <DDD>0.<YY>[ON]` filename is appended (rinex.ObservationFilename /
// NavigationFilename); an explicit file path is used verbatim.
func rinexOutputPath(configured string, name func() (string, error)) (string, error) {
	if fi, err := os.Stat(configured); err == nil && fi.IsDir() {
		fn, err := name()
		if err != nil {
			return "", err
		}
		return filepath.Join(configured, fn), nil
	}
	return configured, nil
}

func versionCode(v string) string {
	if v == "V1" {
		return "01"
	}
	return "2E"
}
