// Package cggtts implements the BIPM CGGTTS V1/V2E track schedule, per-SV
// track fits and file writer (spec.md §4.5, L6).
package cggtts

import "sort"

// NumTracks is the nominal number of tracks in the BIPM daily schedule.
const NumTracks = 89

// TrackPointsPerTrack is the length in seconds of one CGGTTS track.
const TrackPointsPerTrack = 780

// Schedule computes the BIPM 13-min-per-track daily schedule (spec.md §4.5):
// m_i = 2 + 16*i - 4*(MJD-50722) (mod 1436) for i in [0,89), sorted
// ascending, with a trailing track appended if the last slot's minute falls
// before 43 (DefraignePetit2015 pg 3).
func Schedule(mjd int) []int {
	schedule := make([]int, NumTracks)
	for i := 0; i < NumTracks; i++ {
		mins := 2 + 16*i
		v := mins - 4*(mjd-50722)
		if v < 0 {
			ndays := -v/1436 + 1
			v += ndays * 1436
		} else {
			v = v % 1436
		}
		schedule[i] = v
	}
	sort.Ints(schedule)

	if schedule[NumTracks-1]%60 < 43 {
		schedule = append(schedule, schedule[NumTracks-1]+16)
	}
	return schedule
}

// TrackWindow is the [start,stop] second-of-day span of one scheduled track.
type TrackWindow struct {
	StartMinute int // minutes past midnight
	StartSecond int // seconds of day
	StopSecond  int // inclusive, clamped to 86399
}

// TrackWindows converts a Schedule() result into start/stop second spans,
// dropping tracks whose start lies outside [startTime, stopTime] (the
// "window-rejected" rule of spec.md §4.5).
func TrackWindows(schedule []int, startTime, stopTime int) []TrackWindow {
	windows := make([]TrackWindow, 0, len(schedule))
	for _, m := range schedule {
		start := m * 60
		stop := start + TrackPointsPerTrack - 1
		if stop >= 86400 {
			stop = 86399
		}
		if start < startTime || start > stopTime {
			continue
		}
		windows = append(windows, TrackWindow{StartMinute: m, StartSecond: start, StopSecond: stop})
	}
	return windows
}
