// Package timeutil provides MJD/date conversions and GPS time arithmetic
// used throughout the measurement pipeline.
package timeutil

import (
	"math"
	"time"
)

// MJDUnixEpoch is the MJD of the Unix epoch (1970-01-01T00:00:00Z).
const MJDUnixEpoch = 40587

// SecsPerDay is the number of seconds in a day.
const SecsPerDay = 86400

// SecsPerWeek is the number of seconds in a GPS week.
const SecsPerWeek = 604800

// GPSEpoch is the origin of GPS time: 1980-01-06T00:00:00Z.
var GPSEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// MJD returns the Modified Julian Date (as a float, including time of day) for t.
func MJD(t time.Time) float64 {
	unixDays := float64(t.Unix()) / float64(SecsPerDay)
	return unixDays + MJDUnixEpoch
}

// MJDInt returns the integer MJD (midnight) for t.
func MJDInt(t time.Time) int {
	return int(math.Floor(MJD(t)))
}

// DateFromMJD converts an integer MJD into a UTC midnight time.Time.
func DateFromMJD(mjd int) time.Time {
	days := mjd - MJDUnixEpoch
	return time.Unix(int64(days)*SecsPerDay, 0).UTC()
}

// GPSWeekAndTOW returns the full GPS week number and time-of-week (seconds)
// for the given UTC time and leap-second count.
func GPSWeekAndTOW(t time.Time, leapSeconds int) (week int, tow float64) {
	elapsed := t.Sub(GPSEpoch).Seconds() + float64(leapSeconds)
	week = int(math.Floor(elapsed / SecsPerWeek))
	tow = elapsed - float64(week)*SecsPerWeek
	return
}

// TruncatedWeek returns week mod 1024, the value broadcast in the legacy
// 10-bit GPS week field.
func TruncatedWeek(week int) int {
	return week % 1024
}

// GPSToUTC converts a GPS time-of-week/week pair back to UTC, subtracting
// leap seconds.
func GPSToUTC(week int, tow float64, leapSeconds int) time.Time {
	secs := float64(week)*SecsPerWeek + tow - float64(leapSeconds)
	return GPSEpoch.Add(time.Duration(secs * float64(time.Second)))
}

// SecondOfDay returns the UTC second-of-day in [0, 86400) for t, truncating
// sub-second precision.
func SecondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// DayOfWeek returns the GPS day-of-week (0=Sunday) implied by a GPS TOW.
func DayOfWeek(tow float64) int {
	return int(tow) / SecsPerDay
}

// ResolveTOCRollover implements the "last 6 hours of day" TOC-rollover rule
// from the pseudorange correction algorithm (spec.md §4.3 step 1): if the
// current time of week is within the last 6 hours of the GPS day and toc's
// hour-of-day is less than 6, toc is advanced to the next day.
func ResolveTOCRollover(gpsTOW float64, toc float64) float64 {
	igpslt := int(gpsTOW)
	gpsDayOfWeek := igpslt / SecsPerDay
	tmpgpslt := igpslt % SecsPerDay

	tocDay := int(toc) / SecsPerDay
	tocRem := toc - float64(tocDay)*SecsPerDay
	tocHour := int(tocRem) / 3600
	tocRem -= float64(tocHour) * 3600
	tocMinute := int(tocRem) / 60
	tocRem -= float64(tocMinute) * 60
	tocSecond := int(tocRem)

	if tmpgpslt >= (SecsPerDay-6*3600) && tocHour < 6 {
		gpsDayOfWeek++
	}
	return float64(gpsDayOfWeek*SecsPerDay + tocHour*3600 + tocMinute*60 + tocSecond)
}

// LeapSecondsAt returns the announced number of TAI-UTC leap seconds active
// at mjd, given the broadcast UTC parameters (dtLS, dtLSF, WN_LSF truncated
// week, DN reference day-number). ok is false when no leap-second data has
// been seen yet (both deltas zero).
func LeapSecondsAt(mjd int, currentGPSWeek int, dtLS, dtLSF int, wnLSF, dn int) (leapSecs int, ok bool) {
	if dtLS == 0 && dtLSF == 0 {
		return 0, false
	}
	gpsSchedWeek := (currentGPSWeek &^ 0xFF) | (wnLSF & 0xFF)
	for currentGPSWeek-gpsSchedWeek > 127 {
		gpsSchedWeek += 256
	}
	for currentGPSWeek-gpsSchedWeek < -127 {
		gpsSchedWeek -= 256
	}
	gpsSchedMJD := 44244 + 7*gpsSchedWeek + dn
	if mjd >= gpsSchedMJD {
		return dtLSF, true
	}
	return dtLS, true
}
