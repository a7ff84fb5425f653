package rinex

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
)

// cLight is the speed of light in vacuum (m/s), used to turn the transit-time
// pseudoranges pkg/measurement carries back into the meter units RINEX
// observation records use.
const cLight = 299792458.0

// navTimeFormat is the RINEX3 broadcast-orbit epoch layout: "Gnn yyyy mm dd
// hh mm ss", grounded on the format comment in EphGPS.unmarshal.
const navTimeFormat = "2006 01 02 15 04 05"

// WriteObservationFile writes a RINEX 3 observation file containing one
// C1C pseudorange per populated slot of pairs, for the receiver/marker
// identified by receiverID/markerName. version is "2" or "3"; "2" is
// accepted but rendered with the same RINEX 3 epoch layout since this
// writer only targets the single-frequency code-pseudorange case the
// time-transfer pipeline produces.
func WriteObservationFile(path, version, receiverID, markerName string, pairs [86400]measurement.Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rinex: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	if err := writeObsHeader(w, receiverID, markerName); err != nil {
		return err
	}
	for sec, p := range pairs {
		if p.Receiver == nil || len(p.Receiver.SV) == 0 {
			continue
		}
		if err := writeObsEpoch(w, sec, p); err != nil {
			return err
		}
	}
	return nil
}

func writeObsHeader(w *bufio.Writer, receiverID, markerName string) error {
	lines := []string{
		fmt.Sprintf("%9.2f%-11s%-20s%-20sRINEX VERSION / TYPE", 3.04, "", "OBSERVATION DATA", "M"),
		fmt.Sprintf("%-20s%-20s%-20sPGM / RUN BY / DATE", "mktimetx", "BIPM", time.Now().UTC().Format("20060102 150405 UTC")),
		fmt.Sprintf("%-60sMARKER NAME", markerName),
		fmt.Sprintf("%-60sREC # / TYPE / VERS", receiverID),
		"G    1 C1C                                                  SYS / # / OBS TYPES",
		fmt.Sprintf("%10.3f%50sINTERVAL", 1.0, ""),
		"                                                            END OF HEADER",
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return fmt.Errorf("rinex: writing header: %w", err)
		}
	}
	return nil
}

func writeObsEpoch(w *bufio.Writer, sec int, p measurement.Pair) error {
	rm := p.Receiver
	hh := sec / 3600
	mm := (sec - hh*3600) / 60
	ss := sec - hh*3600 - mm*60

	flag := 0
	if _, err := fmt.Fprintf(w, "> %04d %02d %02d %02d %02d %10.7f  %d%3d\n",
		0, 1, 1, hh, mm, float64(ss), flag, len(rm.SV)); err != nil {
		return fmt.Errorf("rinex: writing epoch header: %w", err)
	}

	svs := make([]*measurement.SvMeasurement, len(rm.SV))
	copy(svs, rm.SV)
	sort.Slice(svs, func(i, j int) bool { return svs[i].SVN < svs[j].SVN })

	for _, svm := range svs {
		prMeters := svm.Value * cLight
		if _, err := fmt.Fprintf(w, "%s%02d%14.3f\n", svm.Constellation.Abbr(), svm.SVN, prMeters); err != nil {
			return fmt.Errorf("rinex: writing observation: %w", err)
		}
	}
	return nil
}

// WriteNavigationFile writes a RINEX 3 navigation file from the
// per-constellation ephemeris stores the orchestrator accumulated. Each
// record is an SV/epoch line (TOC/ClockBias/ClockDrift/ClockDriftRate)
// followed by 4-field broadcast orbit lines: six for GPS, five for Galileo.
func WriteNavigationFile(path, version string, storeBySystem map[gnss.System]*ephstore.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rinex: creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	if _, err := fmt.Fprintf(w, "%9.2f%-11s%-20s%-20sRINEX VERSION / TYPE\n", 3.04, "", "NAVIGATION DATA", "M"); err != nil {
		return fmt.Errorf("rinex: writing nav header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "                                                            END OF HEADER"); err != nil {
		return err
	}

	systems := make([]gnss.System, 0, len(storeBySystem))
	for sys := range storeBySystem {
		systems = append(systems, sys)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })

	for _, sys := range systems {
		store := storeBySystem[sys]
		for _, e := range store.All() {
			if err := writeNavRecord(w, sys, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeNavRecord(w *bufio.Writer, sys gnss.System, e ephstore.Eph) error {
	switch eph := e.(type) {
	case *ephstore.GPSEph:
		return writeGPSNavRecord(w, eph)
	case *ephstore.GalEph:
		return writeGalNavRecord(w, eph)
	default:
		return nil // constellation carried for plumbing only, not written (spec.md §1 Non-goals)
	}
}

func writeGPSNavRecord(w *bufio.Writer, e *ephstore.GPSEph) error {
	toc := gpsWeekSecToTime(e.WeekNum, e.T0cSec)
	if _, err := fmt.Fprintf(w, "G%02d %s%19.12E%19.12E%19.12E\n",
		e.SVNNum, toc.Format(navTimeFormat), e.Af0, e.Af1, e.Af2); err != nil {
		return err
	}
	k := e.Kepler
	lines := [][4]float64{
		{float64(e.IODENum), k.Crs, k.DeltaN, k.M0},
		{k.Cuc, k.Ecc, k.Cus, k.SqrtA},
		{e.T0eSec, k.Cic, k.Omega0, k.Cis},
		{k.I0, k.Crc, k.Omega, k.OmegaDot},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "    %19.12E%19.12E%19.12E%19.12E\n", l[0], l[1], l[2], l[3]); err != nil {
			return fmt.Errorf("rinex: writing nav record: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "    %19.12E%19.12E%19.12E%19.12E\n",
		k.IDot, 0.0, float64(e.WeekNum), 0.0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "    %19.12E%19.12E%19.12E%19.12E\n",
		e.URA(), float64(e.Health), e.Tgd, float64(e.IODCNum)); err != nil {
		return err
	}
	return nil
}

func writeGalNavRecord(w *bufio.Writer, e *ephstore.GalEph) error {
	toc := gpsWeekSecToTime(e.WeekNum, e.T0cSec)
	if _, err := fmt.Fprintf(w, "E%02d %s%19.12E%19.12E%19.12E\n",
		e.SVNNum, toc.Format(navTimeFormat), e.Af0, e.Af1, e.Af2); err != nil {
		return err
	}
	k := e.Kepler
	lines := [][4]float64{
		{float64(e.IODnav), k.Crs, k.DeltaN, k.M0},
		{k.Cuc, k.Ecc, k.Cus, k.SqrtA},
		{e.T0eSec, k.Cic, k.Omega0, k.Cis},
		{k.I0, k.Crc, k.Omega, k.OmegaDot},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "    %19.12E%19.12E%19.12E%19.12E\n", l[0], l[1], l[2], l[3]); err != nil {
			return fmt.Errorf("rinex: writing nav record: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "    %19.12E%19.12E%19.12E%19.12E\n",
		k.IDot, float64(e.SignalHealth), e.SISA, 0.0); err != nil {
		return err
	}
	return nil
}

func gpsWeekSecToTime(week int, tow float64) time.Time {
	gpsEpoch := time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)
	return gpsEpoch.Add(time.Duration(week)*7*24*time.Hour + time.Duration(tow*float64(time.Second)))
}
