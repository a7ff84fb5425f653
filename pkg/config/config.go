// Package config loads and validates the mktimetx run configuration: the
// station/antenna/receiver description, per-output CGGTTS settings and the
// RINEX/process-log options (spec.md §6).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Receiver describes the hardware producing the log this run decodes.
type Receiver struct {
	Model       string `yaml:"model" validate:"required,oneof=javad nvs trimble ublox"`
	File        string `yaml:"file" validate:"required"`
	Manufacturer string `yaml:"manufacturer"`
}

// Antenna is the station's coordinate and delay description.
type Antenna struct {
	X          float64 `yaml:"x" validate:"required"`
	Y          float64 `yaml:"y" validate:"required"`
	Z          float64 `yaml:"z" validate:"required"`
	MarkerName string `yaml:"markerName" validate:"required"`
	Frame      string `yaml:"frame"`
}

// Delays are the cable/internal/reference delay offsets folded into the
// CGGTTS measurement delay (spec.md §3 "MeasurementDelay").
type Delays struct {
	IntDelayNs float64 `yaml:"intDelay"`
	CabDelayNs float64 `yaml:"cabDelay"`
	RefDelayNs float64 `yaml:"refDelay"`
	PPSOffsetNs float64 `yaml:"ppsOffset"`
}

// CGGTTSOutput configures one (constellation, code) CGGTTS file (spec.md §6).
type CGGTTSOutput struct {
	Constellation   string  `yaml:"constellation" validate:"required,oneof=GPS GAL BDS GLO"`
	Code            string  `yaml:"code" validate:"required"`
	Code2           string  `yaml:"code2"`
	Version         string  `yaml:"version" validate:"required,oneof=V1 V2E"`
	UseMSIO         bool    `yaml:"useMSIO"`
	UseTIC          bool    `yaml:"useTIC"`
	MinTrackLength  int     `yaml:"minTrackLength"`
	MinElevationDeg float64 `yaml:"minElevation"`
	MaxDSGns        float64 `yaml:"maxDSG"`
	MaxURA          float64 `yaml:"maxURA"`
	HardwareChannel int     `yaml:"hardwareChannel"`
	FRC             string  `yaml:"frc"`
	OutputFile      string  `yaml:"outputFile" validate:"required"`
}

// RinexOutput configures the RINEX observation/navigation writer
// (spec.md §4.6).
type RinexOutput struct {
	Enabled     bool   `yaml:"enabled"`
	Version     string `yaml:"version" validate:"omitempty,oneof=2 3"`
	ObsFile     string `yaml:"obsFile"`
	NavFile     string `yaml:"navFile"`
}

// Config is the full run configuration (spec.md §6).
type Config struct {
	Lab         string         `yaml:"lab" validate:"required"`
	ReceiverID  string         `yaml:"receiverID" validate:"required"`
	Receiver    Receiver       `yaml:"receiver" validate:"required"`
	Antenna     Antenna        `yaml:"antenna" validate:"required"`
	Delays      Delays         `yaml:"delays"`
	CGGTTS      []CGGTTSOutput `yaml:"cggtts" validate:"dive"`
	Rinex       RinexOutput    `yaml:"rinex"`
	LeapSeconds int            `yaml:"leapSeconds" validate:"required"`
}

var validate = validator.New()

// Validate checks the configuration against the struct tags above.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// LoadYAML reads a YAML-form configuration (SPEC_FULL.md §3 domain-stack
// wiring: gopkg.in/yaml.v3).
func LoadYAML(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: decoding yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// LoadYAMLFile opens path and parses it as YAML.
func LoadYAMLFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// Load parses the original section/key/value text configuration format
// (spec.md §6), e.g.:
//
//	[receiver]
//	model = ublox
//	file = /data/rx.log
//
//	[antenna]
//	x = 4027893.8
//	y = 307045.6
//	z = 4919156.3
//
// into a Config, then validates it. This is the legacy form supplemented
// alongside the YAML form (SPEC_FULL.md §3).
func Load(r io.Reader) (*Config, error) {
	sections := make(map[string]map[string]string)
	section := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"))
			if sections[section] == nil {
				sections[section] = make(map[string]string)
			}
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("config: malformed line %q", line)
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		if section == "" {
			return nil, fmt.Errorf("config: key %q outside any [section]", key)
		}
		sections[section][key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading: %w", err)
	}

	c := &Config{}
	if m, ok := sections["lab"]; ok {
		c.Lab = m["name"]
	}
	if m, ok := sections["receiver"]; ok {
		c.ReceiverID = m["id"]
		c.Receiver = Receiver{Model: m["model"], File: m["file"], Manufacturer: m["manufacturer"]}
	}
	if m, ok := sections["antenna"]; ok {
		c.Antenna.X, _ = strconv.ParseFloat(m["x"], 64)
		c.Antenna.Y, _ = strconv.ParseFloat(m["y"], 64)
		c.Antenna.Z, _ = strconv.ParseFloat(m["z"], 64)
		c.Antenna.MarkerName = m["markername"]
		c.Antenna.Frame = m["frame"]
	}
	if m, ok := sections["delays"]; ok {
		c.Delays.IntDelayNs, _ = strconv.ParseFloat(m["intdelay"], 64)
		c.Delays.CabDelayNs, _ = strconv.ParseFloat(m["cabdelay"], 64)
		c.Delays.RefDelayNs, _ = strconv.ParseFloat(m["refdelay"], 64)
		c.Delays.PPSOffsetNs, _ = strconv.ParseFloat(m["ppsoffset"], 64)
	}
	if m, ok := sections["rinex"]; ok {
		c.Rinex.Enabled = m["enabled"] == "true" || m["enabled"] == "1"
		c.Rinex.Version = m["version"]
		c.Rinex.ObsFile = m["obsfile"]
		c.Rinex.NavFile = m["navfile"]
	}
	if m, ok := sections["leapseconds"]; ok {
		c.LeapSeconds, _ = strconv.Atoi(m["value"])
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// LoadFile opens path and parses it with Load.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}
