// Package gnss contains common constants and type definitions.
package gnss

import (
	"encoding/json"
	"fmt"
	"strings"
)

// System is a satellite system.
type System int

// Available satellite systems.
const (
	SysGPS System = iota + 1
	SysGLO
	SysGAL
	SysQZSS
	SysBDS
	SysIRNSS
	SysSBAS
	SysMIXED
)

func (sys System) String() string {
	// TODO change to NavIC or NAVIC
	return [...]string{"", "GPS", "GLO", "GAL", "QZSS", "BDS", "IRNSS", "SBAS", "MIXED"}[sys]
}

// Abbr returns the systems' abbreviation used in RINEX.
func (sys System) Abbr() string {
	return [...]string{"", "G", "R", "E", "J", "C", "I", "S", "M"}[sys]
}

// Systems specifies a list of satellite systems.
type Systems []System

// String returns the contained systems in sitelog manner GPS+GLO+...
func (syss Systems) String() string {
	str := make([]string, 0, len(syss))
	for _, sys := range syss {
		str = append(str, sys.String())
	}
	return strings.Join(str, "+")
}

// MarshalJSON marshals Systems as an array of RINEX abbreviations, e.g.
// ["E","C"].
func (syss Systems) MarshalJSON() ([]byte, error) {
	abbrs := make([]string, len(syss))
	for i, sys := range syss {
		abbrs[i] = sys.Abbr()
	}
	return json.Marshal(abbrs)
}

var sysPerName = map[string]System{
	"GPS": SysGPS, "GLO": SysGLO, "GAL": SysGAL, "QZSS": SysQZSS,
	"BDS": SysBDS, "IRNSS": SysIRNSS, "SBAS": SysSBAS, "MIXED": SysMIXED,
}

// ParseSatSystems parses a config-style "GPS+GLO+GAL" system list, the same
// notation §6's cggtts/rinex config sections use for the constellation key.
func ParseSatSystems(s string) (Systems, error) {
	parts := strings.Split(s, "+")
	syss := make(Systems, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		sys, ok := sysPerName[p]
		if !ok {
			return nil, fmt.Errorf("gnss: unknown satellite system %q in %q", p, s)
		}
		syss = append(syss, sys)
	}
	return syss, nil
}
