package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meico/internal/config"
	"meico/internal/engine"
	"meico/internal/history"
	"meico/internal/logging"
	"meico/internal/pipeline"
	"meico/internal/request"
	"meico/internal/scratch"
	"meico/internal/services"
)

const surfaceCLI = "cli"

type convertFlags struct {
	validate          bool
	addIDs            bool
	resolveCopyOfs    bool
	ignoreRepetitions bool
	ignoreExpansions  bool
	msm               bool
	midi              bool
	noProgramChanges  bool
	dontUseChannel10  bool
	tempo             float64
	wav               bool
	mp3               bool
	soundbank         string
	movement          int
	debug             bool
}

func (f *convertFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVarP(&f.validate, "validate", "v", false, "validate the MEI document while loading")
	fs.BoolVarP(&f.addIDs, "add-ids", "a", false, "add xml:ids where missing; writes <name>-meico.mei")
	fs.BoolVarP(&f.resolveCopyOfs, "resolve-copy-ofs", "r", false, "resolve copyof/sameas references; writes <name>-meico.mei")
	fs.BoolVarP(&f.ignoreRepetitions, "ignore-repetitions", "n", false, "keep sequencing maps unresolved")
	fs.BoolVarP(&f.ignoreExpansions, "ignore-expansions", "e", false, "ignore MEI expansion elements")
	fs.BoolVarP(&f.msm, "msm", "m", false, "convert to MSM")
	fs.BoolVarP(&f.midi, "midi", "i", false, "convert to MIDI")
	fs.BoolVarP(&f.noProgramChanges, "no-program-changes", "p", false, "suppress program change events in MIDI")
	fs.BoolVarP(&f.dontUseChannel10, "dont-use-channel-10", "c", false, "do not use channel 10 (drum channel)")
	fs.Float64VarP(&f.tempo, "tempo", "t", 120, "MIDI tempo in beats per minute")
	fs.BoolVarP(&f.wav, "wav", "w", false, "convert to Wave")
	fs.BoolVarP(&f.mp3, "mp3", "3", false, "convert to MP3")
	fs.StringVarP(&f.soundbank, "soundbank", "s", "", "soundbank file (.sf2/.dls) for audio rendering")
	fs.IntVar(&f.movement, "movement", 0, "movement index")
	fs.BoolVarP(&f.debug, "debug", "d", false, "write debug snapshots and keep rests in MSM")
}

// options converts the parsed flags into raw request options. Flags the user
// did not set are left empty so configured defaults apply.
func (f *convertFlags) options(cmd *cobra.Command) request.Options {
	fs := cmd.Flags()
	boolValue := func(name string, value bool) string {
		if !fs.Changed(name) {
			return ""
		}
		return strconv.FormatBool(value)
	}
	var outputs []string
	for _, o := range []struct {
		on    bool
		token string
	}{
		{f.msm, request.OutputMSM},
		{f.midi, request.OutputMIDI},
		{f.wav, request.OutputWAV},
		{f.mp3, request.OutputMP3},
	} {
		if o.on {
			outputs = append(outputs, o.token)
		}
	}
	opts := request.Options{
		Outputs:           outputs,
		Validate:          boolValue("validate", f.validate),
		AddIDs:            boolValue("add-ids", f.addIDs),
		ResolveCopyOfs:    boolValue("resolve-copy-ofs", f.resolveCopyOfs),
		NoProgramChanges:  boolValue("no-program-changes", f.noProgramChanges),
		DontUseChannel10:  boolValue("dont-use-channel-10", f.dontUseChannel10),
		IgnoreExpansions:  boolValue("ignore-expansions", f.ignoreExpansions),
		IgnoreRepetitions: boolValue("ignore-repetitions", f.ignoreRepetitions),
		Debug:             boolValue("debug", f.debug),
		Soundbank:         strings.TrimSpace(f.soundbank),
	}
	if fs.Changed("tempo") {
		opts.Tempo = strconv.FormatFloat(f.tempo, 'f', -1, 64)
	}
	if fs.Changed("movement") {
		opts.Movement = strconv.Itoa(f.movement)
	}
	return opts
}

func runConvert(cmd *cobra.Command, cc *commandContext, flags *convertFlags, input string) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	source, err := resolveInput(input)
	if err != nil {
		return err
	}

	opts := flags.options(cmd)
	if opts.Soundbank != "" {
		expanded, err := config.ExpandPath(opts.Soundbank)
		if err == nil {
			opts.Soundbank = expanded
		}
	}
	rc, err := request.Parse(opts, request.Defaults{
		Tempo:             cfg.Defaults.Tempo,
		SuppressChannel10: cfg.Defaults.DontUseChannel10,
	})
	if err != nil {
		return err
	}
	if rc.IsNoop() && !rc.Validate() {
		fmt.Fprintln(out, "Nothing to do: no output requested.")
		return nil
	}

	requestID := uuid.NewString()
	logger := cc.ensureLogger()
	ctx := services.WithRequestID(services.WithSurface(cmd.Context(), surfaceCLI), requestID)

	mgr, err := scratch.New(cfg.Paths.ScratchDir, scratch.WithLogger(logger), scratch.WithRetryInterval(cfg.RetryInterval()))
	if err != nil {
		return err
	}
	defer mgr.Close()
	area, err := mgr.Acquire(ctx)
	if err != nil {
		return err
	}
	defer mgr.Release(area)

	eng, err := cc.newEngine(cfg, logger, area.Path())
	if err != nil {
		return err
	}

	seq := pipeline.New(eng,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(newProgressObserver(out)),
		pipeline.WithTicksPerBeat(cfg.Engine.TicksPerBeat),
	)
	fmt.Fprintf(out, "Converting %s\n", source)
	src := engine.FromPath(source)
	started := time.Now()
	result, runErr := seq.Run(ctx, src, rc, besideSource(source))
	recordRun(ctx, cfg, logger, history.NewRun(requestID, surfaceCLI, src, rc, started, result, runErr))

	if len(result.Artifacts) > 0 {
		printArtifacts(out, result.Artifacts)
	}
	if runErr == nil && rc.SoundbankFallback() {
		fmt.Fprintf(out, "Soundbank %s is not usable; rendered with the built-in soundbank.\n", rc.RequestedSoundbank())
	}
	if runErr == nil && rc.Validate() && rc.IsNoop() {
		fmt.Fprintln(out, "Document loaded and validated.")
	}
	return runErr
}

// resolveInput expands and checks the input path.
func resolveInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", usageError("input file is required")
	}
	path, err := config.ExpandPath(input)
	if err != nil {
		return "", usageError("resolve input path: %v", err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", services.Wrap(services.ErrMissingInputFile, string(pipeline.StageLoad), "", "MEI file could not be found: "+path, err)
	case err != nil:
		return "", services.Wrap(services.ErrMissingInputFile, string(pipeline.StageLoad), "", fmt.Sprintf("MEI file could not be read: %v", err), err)
	case info.IsDir():
		return "", services.Wrap(services.ErrMissingInputFile, string(pipeline.StageLoad), "", path+" is a directory, not an MEI file", nil)
	}
	return path, nil
}

// besideSource places artifacts next to the input document:
// <stem>-meico.mei, <stem>-debug.mei, <stem>.msm, <stem>.mid, <stem>.wav,
// <stem>.mp3, with -<n> before the extension for movements past the first.
func besideSource(source string) pipeline.Placement {
	dir := filepath.Dir(source)
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return func(kind pipeline.ArtifactKind, movement int) string {
		name := stem
		switch kind {
		case pipeline.KindMEI:
			name += "-meico"
		case pipeline.KindDebugMEI:
			name += "-debug"
		}
		if movement > 0 {
			name += "-" + strconv.Itoa(movement)
		}
		return filepath.Join(dir, name+kind.Extension())
	}
}

func recordRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, run history.Run) {
	store, err := history.Open(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run not recorded"),
		)
		return
	}
	defer store.Close()
	if err := store.Record(ctx, run); err != nil {
		logging.WarnWithContext(logger, "failed to record conversion run", "history_record_failed",
			logging.String("run_id", run.ID),
			logging.Error(err),
		)
	}
}

func printArtifacts(out io.Writer, artifacts []pipeline.Artifact) {
	if !isTerminal(out) {
		for _, a := range artifacts {
			fmt.Fprintln(out, a.Path)
		}
		return
	}
	rows := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		rows = append(rows, []string{string(a.Kind), strconv.Itoa(a.Movement), a.Path})
	}
	fmt.Fprintln(out, renderTable([]string{"Output", "Movement", "Path"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
}
