package request

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"meico/internal/services"
)

// Output format tokens.
const (
	OutputMEI  = "mei"
	OutputMSM  = "msm"
	OutputMIDI = "midi"
	OutputWAV  = "wav"
	OutputMP3  = "mp3"
)

// Formats lists the accepted output tokens in pipeline order.
var Formats = []string{OutputMEI, OutputMSM, OutputMIDI, OutputWAV, OutputMP3}

// Options is the raw, surface-provided option set. Boolean fields hold smart
// boolean spellings; an empty string means "not given".
type Options struct {
	Outputs           []string
	Validate          string
	AddIDs            string
	ResolveCopyOfs    string
	NoProgramChanges  string
	DontUseChannel10  string
	IgnoreExpansions  string
	IgnoreRepetitions string
	Debug             string
	Tempo             string
	Movement          string
	Soundbank         string
}

// Defaults are applied for options the caller left empty.
type Defaults struct {
	Tempo             float64
	SuppressChannel10 bool
}

// Config is an immutable, validated conversion request.
type Config struct {
	validate          bool
	addIDs            bool
	resolveCopyOfs    bool
	wantMEI           bool
	wantMSM           bool
	wantMIDI          bool
	wantWAV           bool
	wantMP3           bool
	noProgramChanges  bool
	suppressChannel10 bool
	ignoreExpansions  bool
	ignoreRepetitions bool
	debug             bool
	tempo             float64
	movement          int
	soundbank         string
	requestedBank     string
}

// Parse validates raw options and fills in defaults.
func Parse(raw Options, defaults Defaults) (Config, error) {
	cfg := Config{
		tempo:             defaults.Tempo,
		suppressChannel10: defaults.SuppressChannel10,
	}
	if cfg.tempo <= 0 || math.IsNaN(cfg.tempo) || math.IsInf(cfg.tempo, 0) {
		cfg.tempo = 120
	}

	for _, token := range raw.Outputs {
		switch strings.ToLower(strings.TrimSpace(token)) {
		case "":
		case OutputMEI:
			cfg.wantMEI = true
		case OutputMSM:
			cfg.wantMSM = true
		case OutputMIDI:
			cfg.wantMIDI = true
		case OutputWAV:
			cfg.wantWAV = true
		case OutputMP3:
			cfg.wantMP3 = true
		default:
			return Config{}, invalid("output", fmt.Sprintf("unknown output format %q (want one of %s)", token, strings.Join(Formats, ", ")), nil)
		}
	}

	flags := []struct {
		name  string
		value string
		dst   *bool
	}{
		{"validate", raw.Validate, &cfg.validate},
		{"add_ids", raw.AddIDs, &cfg.addIDs},
		{"resolve_copy_ofs", raw.ResolveCopyOfs, &cfg.resolveCopyOfs},
		{"no_program_changes", raw.NoProgramChanges, &cfg.noProgramChanges},
		{"dont_use_channel_10", raw.DontUseChannel10, &cfg.suppressChannel10},
		{"ignore_expansions", raw.IgnoreExpansions, &cfg.ignoreExpansions},
		{"ignore_repetitions", raw.IgnoreRepetitions, &cfg.ignoreRepetitions},
		{"debug", raw.Debug, &cfg.debug},
	}
	for _, f := range flags {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		v, err := ParseBool(f.value)
		if err != nil {
			return Config{}, invalid(f.name, fmt.Sprintf("%s: %v", f.name, err), err)
		}
		*f.dst = v
	}

	if tempo := strings.TrimSpace(raw.Tempo); tempo != "" {
		v, err := strconv.ParseFloat(tempo, 64)
		if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Config{}, invalid("tempo", fmt.Sprintf("tempo must be a positive number, got %q", tempo), err)
		}
		cfg.tempo = v
	}

	if movement := strings.TrimSpace(raw.Movement); movement != "" {
		v, err := strconv.Atoi(movement)
		if err != nil || v < 0 {
			return Config{}, invalid("movement", fmt.Sprintf("movement must be a non-negative integer, got %q", movement), err)
		}
		cfg.movement = v
	}

	cfg.requestedBank = strings.TrimSpace(raw.Soundbank)
	if usableFile(cfg.requestedBank) {
		cfg.soundbank = cfg.requestedBank
	}

	return cfg, nil
}

func invalid(field, message string, err error) error {
	return services.Wrap(services.ErrConfiguration, "request", field, message, err)
}

// usableFile reports whether path names an existing, readable regular file.
func usableFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// ParseBool accepts true/false, 1/0, yes/no, and on/off in any case.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", value)
	}
}

func (c Config) Validate() bool          { return c.validate }
func (c Config) AddIDs() bool            { return c.addIDs }
func (c Config) ResolveCopyOfs() bool    { return c.resolveCopyOfs }
func (c Config) WantMEI() bool           { return c.wantMEI }
func (c Config) WantMSM() bool           { return c.wantMSM }
func (c Config) WantMIDI() bool          { return c.wantMIDI }
func (c Config) WantWAV() bool           { return c.wantWAV }
func (c Config) WantMP3() bool           { return c.wantMP3 }
func (c Config) NoProgramChanges() bool  { return c.noProgramChanges }
func (c Config) SuppressChannel10() bool { return c.suppressChannel10 }
func (c Config) IgnoreExpansions() bool  { return c.ignoreExpansions }
func (c Config) IgnoreRepetitions() bool { return c.ignoreRepetitions }
func (c Config) Debug() bool             { return c.debug }
func (c Config) TempoBPM() float64       { return c.tempo }
func (c Config) Movement() int           { return c.movement }

// Soundbank is the usable soundbank path, or "" for the engine's built-in one.
func (c Config) Soundbank() string { return c.soundbank }

// RequestedSoundbank is the soundbank the caller asked for, usable or not.
func (c Config) RequestedSoundbank() string { return c.requestedBank }

// SoundbankFallback reports a requested soundbank that could not be used.
func (c Config) SoundbankFallback() bool {
	return c.requestedBank != "" && c.soundbank == ""
}

// WantAudio reports whether Wave or MP3 output was requested.
func (c Config) WantAudio() bool { return c.wantWAV || c.wantMP3 }

// WantEvents reports whether a timed event stream is needed.
func (c Config) WantEvents() bool { return c.wantMIDI || c.WantAudio() }

// WantSequences reports whether performance sequences must be exported.
func (c Config) WantSequences() bool { return c.wantMSM || c.WantEvents() }

// WritesMEI reports whether the revised document is persisted.
func (c Config) WritesMEI() bool { return c.addIDs || c.resolveCopyOfs || c.wantMEI }

// IsNoop reports a request that produces nothing.
func (c Config) IsNoop() bool { return !c.WritesMEI() && !c.WantSequences() }

// Outputs lists the requested output tokens in pipeline order.
func (c Config) Outputs() []string {
	out := make([]string, 0, len(Formats))
	for _, f := range []struct {
		on    bool
		token string
	}{
		{c.wantMEI, OutputMEI},
		{c.wantMSM, OutputMSM},
		{c.wantMIDI, OutputMIDI},
		{c.wantWAV, OutputWAV},
		{c.wantMP3, OutputMP3},
	} {
		if f.on {
			out = append(out, f.token)
		}
	}
	return out
}
