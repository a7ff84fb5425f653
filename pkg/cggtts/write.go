package cggtts

import (
	"bufio"
	"fmt"

	"github.com/bipm-ttc/mktimetx/pkg/geodetic"
)

// HeaderConfig carries the station/hardware metadata written into the
// fixed-field CGGTTS header (spec.md §3 "CGGTTS header", §4.5).
type HeaderConfig struct {
	Version      string // "01" for V1, "2E" for V2E
	RevDate      string
	ReceiverID   string
	Channel      string
	IMS          string
	Lab          string
	Antenna      geodetic.Antenna
	Frame        string
	Comments     string
	IntDelayNs   float64
	CabDelayNs   float64
	RefDelayNs   float64
	RefName      string
	LabCode      string
	CalibrationID string
}

// checksum is the modular-256 sum of every character's ASCII code across the
// given lines, ported from the original's checksum routine used for both the
// header and each track line (spec.md §4.5 invariant: "the checksum ... is
// the low byte of the sum of every preceding character's ASCII code").
func checksum(lines ...string) byte {
	var sum int
	for _, line := range lines {
		for _, r := range line {
			sum += int(r)
		}
	}
	return byte(sum % 256)
}

// WriteHeader renders the CGGTTS header block, computing and appending the
// CKSUM line last (its value covers every preceding header line).
func WriteHeader(w *bufio.Writer, hc HeaderConfig) error {
	lines := []string{
		fmt.Sprintf("CGGTTS     GENERIC DATA FORMAT VERSION = %s", hc.Version),
		fmt.Sprintf("REV DATE = %s", hc.RevDate),
		fmt.Sprintf("RCVR = %s", hc.ReceiverID),
		fmt.Sprintf("CH = %s", hc.Channel),
		fmt.Sprintf("IMS = %s", hc.IMS),
		fmt.Sprintf("LAB = %s", hc.Lab),
		fmt.Sprintf("X = %.3f m", hc.Antenna.X),
		fmt.Sprintf("Y = %.3f m", hc.Antenna.Y),
		fmt.Sprintf("Z = %.3f m", hc.Antenna.Z),
		fmt.Sprintf("FRAME = %s", hc.Frame),
		fmt.Sprintf("COMMENTS = %s", hc.Comments),
		fmt.Sprintf("INT DLY = %.1f ns", hc.IntDelayNs),
		fmt.Sprintf("CAB DLY = %.1f ns", hc.CabDelayNs),
		fmt.Sprintf("REF DLY = %.1f ns", hc.RefDelayNs),
		fmt.Sprintf("REF = %s", hc.RefName),
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s\n", l); err != nil {
			return err
		}
	}

	cksum := checksum(lines...)
	if _, err := fmt.Fprintf(w, "CKSUM = %02X\n\n", cksum); err != nil {
		return err
	}

	header := " PRN CL  MJD STTIME TRKL ELV AZTH   REFSV      SRSV        REFSYS     SRSYS   DSG IOE MDTR SMDT MDIO SMDI MSIO SMSI ISG FR HC FRC CK"
	_, err := fmt.Fprintf(w, "%s\n", header)
	return err
}

// satPrefix returns the CGGTTS single-letter constellation prefix used in
// the PRN field (spec.md §3 "CGGTTS track" PRN format).
func satPrefix(constellationAbbr string) string {
	switch constellationAbbr {
	case "R":
		return "R"
	case "E":
		return "E"
	case "C":
		return "C"
	default:
		return "G"
	}
}

// WriteTrack renders one fixed-column track line, with the checksum trailing
// byte computed over every preceding character on the line (including
// leading spaces), per the same rule used for the header.
func WriteTrack(w *bufio.Writer, t Track, prnPrefix string) error {
	hhmm := fmt.Sprintf("%02d%02d%02d", t.StartHour, t.StartMinute, 0)

	msio := "9999"
	smsi := "9999"
	isg := "999"
	if t.HasMSIO {
		msio = fmt.Sprintf("%4d", t.MSIOX10)
		smsi = fmt.Sprintf("%4d", t.SMSIX10000)
		isg = fmt.Sprintf("%3d", t.ISGX10)
	}

	line := fmt.Sprintf("%s%02d %02d %5d %6s %4d %3d %4d %11d %6d %11d %6d %4d %4d %4d %4d %4d %4d %s %s %3s %1d %2d %3s",
		prnPrefix, t.SV,
		0, // CL: class, always 00 for single-channel non-multi-GNSS legacy compatibility
		t.MJD, hhmm, t.TrackLengthS, t.ElevationX10/10, t.AzimuthX10,
		t.RefSVX10, t.SRSVX10Tenths,
		t.RefSYSX10, t.SRSYSX10Tenths,
		t.DSGX10, t.IOE,
		t.MDTRX10, t.SMDTX10000, t.MDIOX10, t.SMDIX10000,
		msio, smsi, isg,
		1, t.HardwareChannel, t.FRC,
	)

	line += " "
	cksum := checksum(line)
	_, err := fmt.Fprintf(w, "%s%02X\n", line, cksum)
	return err
}
