package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"meico/internal/engine"
	"meico/internal/logging"
	"meico/internal/request"
	"meico/internal/services"
)

// DefaultTicksPerBeat is the sequence resolution used when none is configured.
const DefaultTicksPerBeat = 720

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger used for stage logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver adds a progress observer.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithTicksPerBeat overrides the sequence export resolution.
func WithTicksPerBeat(ticks int) Option {
	return func(s *Sequencer) {
		if ticks > 0 {
			s.ticksPerBeat = ticks
		}
	}
}

// Sequencer runs conversions against one engine.
type Sequencer struct {
	engine       engine.Engine
	logger       *slog.Logger
	observers    observers
	ticksPerBeat int
}

// New constructs a Sequencer.
func New(eng engine.Engine, opts ...Option) *Sequencer {
	s := &Sequencer{
		engine:       eng,
		logger:       logging.NewNop(),
		ticksPerBeat: DefaultTicksPerBeat,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "pipeline")
	s.observers = append(observers{LogObserver{Logger: s.logger}}, s.observers...)
	return s
}

// run carries the objects produced so far through one conversion.
type run struct {
	seq   *Sequencer
	src   engine.Source
	cfg   request.Config
	place Placement

	doc       engine.Document
	movements []engine.Movement
	movement  engine.Movement
	events    engine.EventStream
	audio     engine.Audio
	artifacts []Artifact
}

type rule struct {
	stage Stage
	when  func(request.Config) bool
	step  func(*run, context.Context) error
}

// rules is evaluated top to bottom; order follows data dependency.
var rules = []rule{
	{StageLoad, func(c request.Config) bool { return !c.IsNoop() || c.Validate() }, (*run).load},
	{StageAddIDs, request.Config.AddIDs, (*run).addIDs},
	{StageResolveCopyOfs, request.Config.ResolveCopyOfs, (*run).resolveCopyOfs},
	{StageWriteMEI, request.Config.WritesMEI, (*run).writeMEI},
	{StageExportSequences, request.Config.WantSequences, (*run).exportSequences},
	{StageSelectMovement, request.Config.WantSequences, (*run).selectMovement},
	{StageRemoveRests, func(c request.Config) bool { return c.WantMSM() && !c.Debug() }, (*run).removeRests},
	{StageResolveSequencing, func(c request.Config) bool { return c.WantSequences() && !c.IgnoreRepetitions() }, (*run).resolveSequencing},
	{StageWriteMSM, request.Config.WantMSM, (*run).writeMSM},
	{StageExportEvents, request.Config.WantEvents, (*run).exportEvents},
	{StageWriteMIDI, request.Config.WantMIDI, (*run).writeMIDI},
	{StageExportAudio, request.Config.WantAudio, (*run).exportAudio},
	{StageWriteAudio, request.Config.WantAudio, (*run).writeAudio},
}

// Run converts src according to cfg, writing artifacts where place says.
// The first failing stage ends the run; artifacts already written stay.
func (s *Sequencer) Run(ctx context.Context, src engine.Source, cfg request.Config, place Placement) (Result, error) {
	if s.engine == nil {
		return Result{}, errors.New("pipeline: engine unavailable")
	}
	if place == nil {
		return Result{}, errors.New("pipeline: output placement required")
	}

	r := &run{seq: s, src: src, cfg: cfg, place: place}
	var result Result
	for _, rl := range rules {
		if !rl.when(cfg) {
			continue
		}
		stageCtx := services.WithStage(ctx, string(rl.stage))
		s.observers.StageStarted(stageCtx, rl.stage)
		started := time.Now()
		if err := execute(stageCtx, r, rl); err != nil {
			stageErr := classify(rl.stage, err)
			s.observers.StageFailed(stageCtx, rl.stage, stageErr)
			result.Artifacts = r.artifacts
			return result, stageErr
		}
		result.Stages = append(result.Stages, rl.stage)
		s.observers.StageCompleted(stageCtx, rl.stage, time.Since(started))
	}
	result.Artifacts = r.artifacts
	return result, nil
}

func execute(ctx context.Context, r *run, rl rule) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = services.Wrap(services.ErrStageFailure, string(rl.stage), "", fmt.Sprintf("engine panic: %v", rec), nil)
		}
	}()
	return rl.step(r, ctx)
}

func (r *run) emit(kind ArtifactKind, movement int, path string) {
	r.artifacts = append(r.artifacts, Artifact{Kind: kind, Path: path, Movement: movement})
}

// write places and writes one artifact. Document snapshots are not tied to a
// movement and are always placed as movement 0.
func (r *run) write(ctx context.Context, kind ArtifactKind, writeTo func(context.Context, string) error) error {
	movement := 0
	if kind != KindMEI && kind != KindDebugMEI {
		movement = r.cfg.Movement()
	}
	path := r.place(kind, movement)
	if path == "" {
		return fmt.Errorf("no output location for %s", kind)
	}
	if err := writeTo(ctx, path); err != nil {
		return err
	}
	r.emit(kind, movement, path)
	return nil
}

func (r *run) load(ctx context.Context) error {
	if !r.src.InMemory() {
		info, err := os.Stat(r.src.Path)
		if err != nil || info.IsDir() {
			return services.Wrap(services.ErrMissingInputFile, string(StageLoad), "", "MEI file could not be found", err)
		}
	} else if len(r.src.Data) == 0 {
		return services.Wrap(services.ErrMissingInputFile, string(StageLoad), "", "MEI file could not be loaded", nil)
	}
	doc, err := r.seq.engine.Load(ctx, r.src, r.cfg.Validate())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrEmptyDocument),
		errors.Is(err, services.ErrMissingDependency),
		errors.Is(err, services.ErrMissingInputFile),
		errors.Is(err, services.ErrInvalidInput):
		return err
	default:
		// Anything else the engine reports while reading the document means
		// the document itself could not be parsed.
		return services.Wrap(services.ErrInvalidInput, string(StageLoad), "", "", err)
	}
	if doc == nil {
		return engine.ErrEmptyDocument
	}
	r.doc = doc
	return nil
}

func (r *run) addIDs(ctx context.Context) error {
	return r.doc.AddIDs(ctx)
}

func (r *run) resolveCopyOfs(ctx context.Context) error {
	return r.doc.ResolveCopyOfs(ctx)
}

func (r *run) writeMEI(ctx context.Context) error {
	return r.write(ctx, KindMEI, r.doc.WriteTo)
}

func (r *run) exportSequences(ctx context.Context) error {
	movements, err := r.doc.ExportSequences(ctx, engine.SequenceOptions{
		TicksPerBeat:      r.seq.ticksPerBeat,
		SuppressChannel10: r.cfg.SuppressChannel10(),
		IgnoreExpansions:  r.cfg.IgnoreExpansions(),
		Cleanup:           !r.cfg.Debug(),
	})
	if err != nil {
		return err
	}
	if len(movements) == 0 {
		return services.Wrap(services.ErrEmptyResult, string(StageExportSequences), "", "MSM export produced no sequences", nil)
	}
	r.movements = movements
	if r.cfg.Debug() {
		return r.write(ctx, KindDebugMEI, r.doc.WriteTo)
	}
	return nil
}

func (r *run) selectMovement(ctx context.Context) error {
	idx := r.cfg.Movement()
	if idx < 0 || idx >= len(r.movements) {
		return fail(StageSelectMovement, services.ErrConfiguration,
			fmt.Sprintf("movement %d out of range (document has %d)", idx, len(r.movements)))
	}
	r.movement = r.movements[idx]
	return nil
}

func (r *run) removeRests(ctx context.Context) error {
	return r.movement.RemoveRests(ctx)
}

func (r *run) resolveSequencing(ctx context.Context) error {
	return r.movement.ResolveSequencing(ctx)
}

func (r *run) writeMSM(ctx context.Context) error {
	return r.write(ctx, KindMSM, r.movement.WriteTo)
}

func (r *run) exportEvents(ctx context.Context) error {
	events, err := r.movement.ExportEvents(ctx, r.cfg.TempoBPM(), !r.cfg.NoProgramChanges())
	if err != nil {
		return err
	}
	if events == nil {
		return services.Wrap(services.ErrEmptyResult, string(StageExportEvents), "", "MIDI export produced no events", nil)
	}
	r.events = events
	return nil
}

func (r *run) writeMIDI(ctx context.Context) error {
	return r.write(ctx, KindMIDI, r.events.WriteTo)
}

func (r *run) exportAudio(ctx context.Context) error {
	if r.cfg.SoundbankFallback() {
		logging.WithContext(ctx, r.seq.logger).Debug("soundbank unusable, rendering with built-in soundbank",
			logging.String("soundbank", r.cfg.RequestedSoundbank()))
	}
	audio, err := r.events.ExportAudio(ctx, r.cfg.Soundbank())
	if err != nil {
		return err
	}
	if audio == nil {
		return services.Wrap(services.ErrEmptyResult, string(StageExportAudio), "", "audio rendering produced no data", nil)
	}
	r.audio = audio
	return nil
}

func (r *run) writeAudio(ctx context.Context) error {
	if r.cfg.WantWAV() {
		if err := r.write(ctx, KindWAV, r.audio.WriteWave); err != nil {
			return err
		}
	}
	if r.cfg.WantMP3() {
		if err := r.write(ctx, KindMP3, r.audio.WriteMP3); err != nil {
			return err
		}
	}
	return nil
}
