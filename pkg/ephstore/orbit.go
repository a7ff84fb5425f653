package ephstore

import (
	"fmt"
	"math"

	"github.com/bipm-ttc/mktimetx/pkg/geodetic"
	"github.com/bipm-ttc/mktimetx/pkg/timeutil"
)

// WGS-84/GPS ICD constants (ICD-GPS-200).
const (
	muEarth      = 3.986005e14   // m^3/s^2
	omegaEDot    = 7.2921151467e-5 // rad/s
	relFactor    = -4.442807633e-10
	maxKeplerIter = 10
	keplerTol    = 1e-8
	cLight       = 299792458.0
)

// SatXYZ propagates the GPS/Galileo-style Keplerian ephemeris to ECEF
// position at GPS system time t (seconds of week), returning also the solved
// eccentric anomaly Ek. Mirrors GPS::satXYZ from the reference decoder
// (ICD-GPS-200 §20.3.3.4.3.1) exactly, including the week-boundary tk
// wraparound and the fixed-point Kepler solve with a 10-iteration cap.
func SatXYZ(k Keplerian, t0e float64, t float64) (pos geodetic.ECEF, ek float64, err error) {
	a := k.SqrtA * k.SqrtA
	e := k.Ecc

	tk := t - t0e
	if tk > 302400 {
		tk -= 604800
	} else if tk < -302400 {
		tk += 604800
	}

	n0 := math.Sqrt(muEarth / (a * a * a))
	mk := k.M0 + (n0+k.DeltaN)*tk

	ek = mk
	converged := false
	for i := 0; i < maxKeplerIter; i++ {
		ekOld := ek
		ek = mk + e*math.Sin(ekOld)
		if math.Abs(ek-ekOld) < keplerTol {
			converged = true
			break
		}
	}
	if !converged {
		return geodetic.ECEF{}, 0, fmt.Errorf("ephstore: Kepler equation did not converge")
	}

	phik := math.Atan2(math.Sqrt(1-e*e)*math.Sin(ek), math.Cos(ek)-e) + k.Omega
	uk := phik + k.Cus*math.Sin(2*phik) + k.Cuc*math.Cos(2*phik)
	rk := a*(1-e*math.Cos(ek)) + k.Crc*math.Cos(2*phik) + k.Crs*math.Sin(2*phik)
	ik := k.I0 + k.IDot*tk + k.Cic*math.Cos(2*phik) + k.Cis*math.Sin(2*phik)

	xp := rk * math.Cos(uk)
	yp := rk * math.Sin(uk)
	omegak := k.Omega0 + (k.OmegaDot-omegaEDot)*tk - omegaEDot*t0e

	pos = geodetic.ECEF{
		X: xp*math.Cos(omegak) - yp*math.Cos(ik)*math.Sin(omegak),
		Y: xp*math.Sin(omegak) + yp*math.Cos(ik)*math.Cos(omegak),
		Z: yp * math.Sin(ik),
	}
	return pos, ek, nil
}

// RelativisticCorrection is the eccentricity/Kepler-dependent relativistic
// clock correction, ICD-GPS-200 §20.3.3.3.3.1.
func RelativisticCorrection(k Keplerian, ek float64) float64 {
	return relFactor * k.Ecc * k.SqrtA * math.Sin(ek)
}

// IonoCorr are Klobuchar ionospheric model parameters (spec.md §3
// IonosphereData).
type IonoCorr struct {
	Alpha0, Alpha1, Alpha2, Alpha3 float64
	Beta0, Beta1, Beta2, Beta3     float64
}

// KlobucharDelay computes the ionospheric delay in nanoseconds using the
// Klobuchar model, IS-GPS-200 pg 126, ported verbatim from GPS::ionoDelay
// (az/elev/lat/lon in degrees, gpsTime seconds of day).
func KlobucharDelay(azDeg, elDeg, latDeg, lonDeg, gpsTime float64, c IonoCorr) float64 {
	const pi = math.Pi

	az := azDeg / 180.0
	el := elDeg / 180.0
	phiU := latDeg / 180.0
	lambdaU := lonDeg / 180.0

	psi := 0.0137/(el+0.11) - 0.022

	phiI := phiU + psi*math.Cos(az*pi)
	if phiI > 0.416 {
		phiI = 0.416
	}
	if phiI < -0.416 {
		phiI = -0.416
	}

	lambdaI := lambdaU + psi*math.Sin(az*pi)/math.Cos(phiI*pi)

	t := 4.32e4*lambdaI + gpsTime
	for t >= 86400 {
		t -= 86400
	}
	for t < 0 {
		t += 86400
	}

	phiM := phiI + 0.064*math.Cos((lambdaI-1.617)*pi)

	per := c.Beta0 + c.Beta1*phiM + c.Beta2*phiM*phiM + c.Beta3*phiM*phiM*phiM
	if per < 72000 {
		per = 72000
	}

	x := 2 * pi * (t - 50400) / per

	amp := c.Alpha0 + c.Alpha1*phiM + c.Alpha2*phiM*phiM + c.Alpha3*phiM*phiM*phiM
	if amp < 0 {
		amp = 0
	}

	f := 1 + 16*math.Pow(0.53-el, 3)

	var tiono float64
	if math.Abs(x) < 1.57 {
		tiono = f * (5e-9 + amp*(1-x*x/2+x*x*x*x/24))
	} else {
		tiono = f * 5e-9
	}

	return tiono * 1e9
}

// GroupDelayFactor returns the ICD-GPS-200 §20.3.3.3.3.2 TGD scale factor
// for the given frequency code: 1 for C1/P1, (77/60)^2 for P2.
func GroupDelayFactor(codeIsP2 bool) float64 {
	if codeIsP2 {
		return (77.0 / 60.0) * (77.0 / 60.0)
	}
	return 1.0
}

// ClockCorrection evaluates the broadcast SV clock polynomial
// a_f0 + a_f1*(tsv-toc) + a_f2*(tsv-toc)^2 (spec.md §4.3 step 2).
func ClockCorrection(af0, af1, af2, tsv, toc float64) float64 {
	dt := tsv - toc
	return af0 + af1*dt + af2*dt*dt
}

// PseudorangeCorrection is the output of GetPseudorangeCorrections
// (spec.md §4.3).
type PseudorangeCorrection struct {
	RefSV, RefSYS     float64 // ns
	Iono, Tropo       float64 // ns
	Azimuth, Elevation float64 // degrees
	IOE               int
}

// GetPseudorangeCorrections implements the representative GPS pseudorange
// correction algorithm of spec.md §4.3, ported from
// GPS::getPseudorangeCorrections. gpsTOW is the rounded GPS time-of-week
// (s), pr the raw pseudorange (s), antGeo the antenna's derived geodetic
// position (for the Klobuchar model), ionoCorr the broadcast Klobuchar
// parameters. Returns an error if Kepler's equation fails to converge or the
// |range - geometric distance| sanity check (step 7) rejects the fix.
func GetPseudorangeCorrections(gpsTOW, pr float64, ant geodetic.ECEF, antGeo geodetic.Geodetic,
	k Keplerian, t0e float64, af0, af1, af2, tgd float64, iod int, codeIsP2 bool, ionoCorr IonoCorr) (PseudorangeCorrection, error) {

	tGDcorr := GroupDelayFactor(codeIsP2)

	toc := timeutil.ResolveTOCRollover(gpsTOW, t0e)
	gpssvt := gpsTOW - pr
	clockCorrection := ClockCorrection(af0, af1, af2, gpssvt, toc)
	tk := gpssvt - clockCorrection

	pos, ek, err := SatXYZ(k, t0e, tk)
	if err != nil {
		return PseudorangeCorrection{}, err
	}

	relCorr := RelativisticCorrection(k, ek)
	rng := pr + clockCorrection + relCorr - tGDcorr*tgd

	// Sagnac: displace the antenna by Omega_dot * range in ECEF.
	ax := ant.X - omegaEDot*ant.Y*rng
	ay := ant.Y + omegaEDot*ant.X*rng
	az := ant.Z

	svrange := (pr + clockCorrection) * cLight
	dx, dy, dz := pos.X-ax, pos.Y-ay, pos.Z-az
	svdist := math.Sqrt(dx*dx + dy*dy + dz*dz)

	errM := svrange - svdist
	if math.Abs(errM/cLight) >= 1000e-9 {
		return PseudorangeCorrection{}, fmt.Errorf("ephstore: pseudorange sanity check failed: %.3g ns", 1e9*errM/cLight)
	}

	elevation, azimuth := geodetic.ElevationAzimuth(ant, pos)

	result := PseudorangeCorrection{
		RefSYS:    (clockCorrection + relCorr - tGDcorr*tgd - svdist/cLight) * 1e9,
		RefSV:     (relCorr - tGDcorr*tgd - svdist/cLight) * 1e9,
		Tropo:     geodetic.TroposphereDelay(elevation, antGeo.Height),
		Iono:      KlobucharDelay(azimuth, elevation, antGeo.Lat*180/math.Pi, antGeo.Lon*180/math.Pi, gpsTOW, ionoCorr),
		Azimuth:   azimuth,
		Elevation: elevation,
		IOE:       iod,
	}
	return result, nil
}
