package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"meico/internal/engine"
	"meico/internal/engine/enginetest"
	"meico/internal/pipeline"
	"meico/internal/request"
	"meico/internal/services"
)

func parse(t *testing.T, opts request.Options) request.Config {
	t.Helper()
	cfg, err := request.Parse(opts, request.Defaults{Tempo: 120})
	if err != nil {
		t.Fatalf("request.Parse: %v", err)
	}
	return cfg
}

func placeIn(dir string) pipeline.Placement {
	return func(kind pipeline.ArtifactKind, movement int) string {
		return filepath.Join(dir, fmt.Sprintf("%s-%d%s", kind, movement, kind.Extension()))
	}
}

func source() engine.Source {
	return engine.FromBytes("score.mei", []byte("<mei>notes</mei>"))
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) StageStarted(_ context.Context, s pipeline.Stage) {
	r.add("start " + string(s))
}

func (r *recorder) StageCompleted(_ context.Context, s pipeline.Stage, _ time.Duration) {
	r.add("done " + string(s))
}

func (r *recorder) StageFailed(_ context.Context, s pipeline.Stage, _ error) {
	r.add("fail " + string(s))
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestAllFalseConfigIsNoop(t *testing.T) {
	fake := enginetest.New(1)
	dir := t.TempDir()

	res, err := pipeline.New(fake).Run(context.Background(), source(), parse(t, request.Options{}), placeIn(dir))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Artifacts) != 0 || len(res.Stages) != 0 {
		t.Fatalf("expected nothing to run, got %+v", res)
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("expected zero engine calls, got %d", fake.TotalCalls())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected zero writes, found %d files", len(entries))
	}
}

func TestValidateOnlyLoadsWithoutWriting(t *testing.T) {
	fake := enginetest.New(1)
	res, err := pipeline.New(fake).Run(context.Background(), source(), parse(t, request.Options{Validate: "true"}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !reflect.DeepEqual(res.Stages, []pipeline.Stage{pipeline.StageLoad}) {
		t.Fatalf("unexpected stages %v", res.Stages)
	}
	if len(fake.Writes()) != 0 {
		t.Fatal("validation must not write")
	}
}

func TestMSMOnlyNeverReachesEventOrAudioStages(t *testing.T) {
	fake := enginetest.New(1)
	res, err := pipeline.New(fake).Run(context.Background(), source(), parse(t, request.Options{Outputs: []string{"msm"}}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, op := range []string{enginetest.OpExportEvents, enginetest.OpWriteMIDI, enginetest.OpExportAudio, enginetest.OpWriteWave, enginetest.OpWriteMP3} {
		if fake.Calls(op) != 0 {
			t.Fatalf("MSM-only request invoked %s", op)
		}
	}
	if fake.Calls(enginetest.OpRemoveRests) != 1 || fake.Calls(enginetest.OpResolveSequencing) != 1 {
		t.Fatal("expected rests removed and sequencing resolved")
	}
	if fake.Calls(enginetest.OpWriteMEI) != 0 {
		t.Fatal("MSM-only request should not write the document")
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Kind != pipeline.KindMSM {
		t.Fatalf("expected one MSM artifact, got %+v", res.Artifacts)
	}
	data, err := os.ReadFile(res.Artifacts[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ppq=720") || !strings.Contains(string(data), "rests=false") {
		t.Fatalf("unexpected MSM content %q", data)
	}
}

func TestMovementOutOfRangeIsConfigurationError(t *testing.T) {
	for _, movement := range []string{"2", "7"} {
		fake := enginetest.New(2)
		_, err := pipeline.New(fake).Run(context.Background(), source(),
			parse(t, request.Options{Outputs: []string{"midi"}, Movement: movement}), placeIn(t.TempDir()))
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("movement %s: expected configuration error, got %v", movement, err)
		}
		var stageErr *pipeline.StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != pipeline.StageSelectMovement {
			t.Fatalf("expected select_movement stage error, got %v", err)
		}
		if services.ExitCode(err) != services.ExitUsage {
			t.Fatalf("unexpected exit code %d", services.ExitCode(err))
		}
		if fake.Calls(enginetest.OpExportEvents) != 0 {
			t.Fatal("no stage may run past a failure")
		}
	}
}

func TestSecondMovementMidiWithTempoAndNoDrumChannel(t *testing.T) {
	fake := enginetest.New(2)
	cfg := parse(t, request.Options{
		Outputs:          []string{"midi"},
		Movement:         "1",
		Tempo:            "90",
		DontUseChannel10: "true",
	})
	res, err := pipeline.New(fake).Run(context.Background(), source(), cfg, placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("expected exactly one artifact, got %+v", res.Artifacts)
	}
	midi := res.Artifacts[0]
	if midi.Kind != pipeline.KindMIDI || midi.Movement != 1 {
		t.Fatalf("unexpected artifact %+v", midi)
	}
	data, err := os.ReadFile(midi.Path)
	if err != nil {
		t.Fatal(err)
	}
	want := "midi movement=1 tempo=90 program_changes=true channel10=false\n"
	if string(data) != want {
		t.Fatalf("unexpected midi content %q, want %q", data, want)
	}
	if fake.Calls(enginetest.OpRemoveRests) != 0 {
		t.Fatal("rests are only stripped for MSM output")
	}
}

func TestIdenticalRunsProduceIdenticalArtifacts(t *testing.T) {
	cfg := parse(t, request.Options{Outputs: []string{"msm", "midi"}})
	var outputs [2][]pipeline.Artifact
	for i := range outputs {
		res, err := pipeline.New(enginetest.New(1)).Run(context.Background(), source(), cfg, placeIn(t.TempDir()))
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		outputs[i] = res.Artifacts
	}
	if len(outputs[0]) != 2 || len(outputs[1]) != 2 {
		t.Fatalf("expected MSM and MIDI artifacts, got %+v", outputs)
	}
	for i := range outputs[0] {
		a, _ := os.ReadFile(outputs[0][i].Path)
		b, _ := os.ReadFile(outputs[1][i].Path)
		if !bytes.Equal(a, b) {
			t.Fatalf("%s differs between runs: %q vs %q", outputs[0][i].Kind, a, b)
		}
	}
}

func TestMissingSoundbankFallsBackToBuiltin(t *testing.T) {
	fake := enginetest.New(1)
	cfg := parse(t, request.Options{Outputs: []string{"wav"}, Soundbank: filepath.Join(t.TempDir(), "absent.sf2")})
	res, err := pipeline.New(fake).Run(context.Background(), source(), cfg, placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	wav, ok := res.Artifact(pipeline.KindWAV)
	if !ok {
		t.Fatalf("expected wav artifact, got %+v", res.Artifacts)
	}
	data, _ := os.ReadFile(wav.Path)
	if !strings.Contains(string(data), "soundbank=builtin") {
		t.Fatalf("expected built-in soundbank, got %q", data)
	}
	if _, ok := res.Artifact(pipeline.KindMIDI); ok {
		t.Fatal("midi was not requested")
	}
}

func TestAudioWritesBothEncodings(t *testing.T) {
	fake := enginetest.New(1)
	res, err := pipeline.New(fake).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"wav", "mp3"}}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fake.Calls(enginetest.OpExportAudio) != 1 {
		t.Fatal("audio must be rendered once for both encodings")
	}
	if _, ok := res.Artifact(pipeline.KindWAV); !ok {
		t.Fatal("missing wav")
	}
	if _, ok := res.Artifact(pipeline.KindMP3); !ok {
		t.Fatal("missing mp3")
	}
}

func TestAddIDsWritesRevisedDocumentOnly(t *testing.T) {
	fake := enginetest.New(1)
	res, err := pipeline.New(fake).Run(context.Background(), source(),
		parse(t, request.Options{AddIDs: "1", ResolveCopyOfs: "1"}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []pipeline.Stage{pipeline.StageLoad, pipeline.StageAddIDs, pipeline.StageResolveCopyOfs, pipeline.StageWriteMEI}
	if !reflect.DeepEqual(res.Stages, want) {
		t.Fatalf("unexpected stages %v", res.Stages)
	}
	mei, ok := res.Artifact(pipeline.KindMEI)
	if !ok {
		t.Fatal("expected revised MEI")
	}
	data, _ := os.ReadFile(mei.Path)
	if !strings.Contains(string(data), "ids=true copyofs_resolved=true") {
		t.Fatalf("unexpected MEI content %q", data)
	}
	if fake.Calls(enginetest.OpExportSequences) != 0 {
		t.Fatal("no sequences were requested")
	}
}

func TestDebugKeepsRestsAndWritesSnapshot(t *testing.T) {
	fake := enginetest.New(1)
	res, err := pipeline.New(fake).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"msm"}, Debug: "on"}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fake.Calls(enginetest.OpRemoveRests) != 0 {
		t.Fatal("debug runs keep rests")
	}
	if _, ok := res.Artifact(pipeline.KindDebugMEI); !ok {
		t.Fatalf("expected debug snapshot, got %+v", res.Artifacts)
	}
	msm, _ := res.Artifact(pipeline.KindMSM)
	data, _ := os.ReadFile(msm.Path)
	if !strings.Contains(string(data), "rests=true") {
		t.Fatalf("expected rests kept, got %q", data)
	}
}

func TestIgnoreRepetitionsSkipsSequencing(t *testing.T) {
	fake := enginetest.New(1)
	_, err := pipeline.New(fake).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"midi"}, IgnoreRepetitions: "yes"}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fake.Calls(enginetest.OpResolveSequencing) != 0 {
		t.Fatal("sequencing must stay unresolved")
	}
}

func TestLoadFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		fake   *enginetest.Engine
		src    engine.Source
		opts   request.Options
		marker error
		exit   int
	}{
		{"empty document", &enginetest.Engine{Movements: 1, Empty: true}, source(), request.Options{Outputs: []string{"msm"}}, services.ErrMissingInputFile, 66},
		{"missing path", enginetest.New(1), engine.FromPath("/nonexistent/score.mei"), request.Options{Outputs: []string{"msm"}}, services.ErrMissingInputFile, 66},
		{"empty upload", enginetest.New(1), engine.FromBytes("x.mei", nil), request.Options{Outputs: []string{"msm"}}, services.ErrMissingInputFile, 66},
		{"invalid", enginetest.New(1), engine.FromBytes("x.mei", []byte("invalid")), request.Options{Outputs: []string{"msm"}, Validate: "true"}, services.ErrInvalidInput, 65},
		{"no sequences", enginetest.New(0), source(), request.Options{Outputs: []string{"msm"}}, services.ErrEmptyResult, 1},
		{"engine missing", enginetest.New(1).FailOn(enginetest.OpLoad, services.Wrap(services.ErrMissingDependency, "", "load", "java runtime not found", nil)), source(), request.Options{Outputs: []string{"mei"}}, services.ErrMissingDependency, 69},
		{"unparseable without validation", enginetest.New(1).FailOn(enginetest.OpLoad, errors.New("SAXParseException: content is not allowed in prolog")), source(), request.Options{Outputs: []string{"midi"}}, services.ErrInvalidInput, 65},
		{"bridge crash while loading", enginetest.New(1).FailOn(enginetest.OpLoad, services.Wrap(services.ErrStageFailure, "", "load", "bridge exited with status 1", nil)), source(), request.Options{Outputs: []string{"msm"}}, services.ErrInvalidInput, 65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.New(tt.fake).Run(context.Background(), tt.src, parse(t, tt.opts), placeIn(t.TempDir()))
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if got := services.ExitCode(err); got != tt.exit {
				t.Fatalf("exit code = %d, want %d", got, tt.exit)
			}
		})
	}
}

func TestLoadFailureNamesCauseOnce(t *testing.T) {
	const cause = "SAXParseException: content is not allowed in prolog"
	fake := enginetest.New(1).FailOn(enginetest.OpLoad, errors.New(cause))
	_, err := pipeline.New(fake).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"midi"}}), placeIn(t.TempDir()))
	if err == nil {
		t.Fatal("expected load failure")
	}
	if n := strings.Count(err.Error(), cause); n != 1 {
		t.Fatalf("cause appears %d times in %q", n, err.Error())
	}
	if services.HTTPStatus(err) != 400 {
		t.Fatalf("expected 400, got %d", services.HTTPStatus(err))
	}
	if got := services.Details(err).Message; got != cause {
		t.Fatalf("unexpected message %q", got)
	}
	if fake.Calls(enginetest.OpExportSequences) != 0 {
		t.Fatal("no stage may run after a failed load")
	}
}

func TestEngineFailureStopsRunAndKeepsPartialArtifacts(t *testing.T) {
	rec := &recorder{}
	fake := enginetest.New(1).FailOn(enginetest.OpExportAudio, errors.New("synth exploded"))
	res, err := pipeline.New(fake, pipeline.WithObserver(rec)).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"midi", "wav"}}), placeIn(t.TempDir()))
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != pipeline.StageExportAudio {
		t.Fatalf("expected export_audio failure, got %v", err)
	}
	if !errors.Is(err, services.ErrStageFailure) || services.ExitCode(err) != services.ExitSoftware {
		t.Fatalf("expected stage failure, got %v", err)
	}
	if details := services.Details(err); details.Stage != "export_audio" || !strings.Contains(details.Message, "synth exploded") {
		t.Fatalf("unexpected details %+v", details)
	}
	if fake.Calls(enginetest.OpWriteWave) != 0 {
		t.Fatal("no stage may run after a failure")
	}
	if _, ok := res.Artifact(pipeline.KindMIDI); !ok {
		t.Fatal("artifacts written before the failure are reported")
	}
	if last := rec.events[len(rec.events)-1]; last != "fail export_audio" {
		t.Fatalf("expected failure callback last, got %q", last)
	}
}

func TestEnginePanicIsRecovered(t *testing.T) {
	fake := enginetest.New(1).PanicOn(enginetest.OpExportEvents, "index out of bounds")
	_, err := pipeline.New(fake).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"midi"}}), placeIn(t.TempDir()))
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != pipeline.StageExportEvents {
		t.Fatalf("expected export_events failure, got %v", err)
	}
	if !errors.Is(err, services.ErrStageFailure) || !strings.Contains(err.Error(), "engine panic") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
}

func TestObserverSeesEachExecutedStageInOrder(t *testing.T) {
	rec := &recorder{}
	_, err := pipeline.New(enginetest.New(1), pipeline.WithObserver(rec)).Run(context.Background(), source(),
		parse(t, request.Options{Outputs: []string{"midi"}}), placeIn(t.TempDir()))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{
		"start load", "done load",
		"start export_sequences", "done export_sequences",
		"start select_movement", "done select_movement",
		"start resolve_sequencing", "done resolve_sequencing",
		"start export_events", "done export_events",
		"start write_midi", "done write_midi",
	}
	if !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("unexpected callbacks:\n got %v\nwant %v", rec.events, want)
	}
}

func TestRunRequiresPlacement(t *testing.T) {
	if _, err := pipeline.New(enginetest.New(1)).Run(context.Background(), source(), parse(t, request.Options{}), nil); err == nil {
		t.Fatal("expected error without placement")
	}
}

func TestStageLabelsAndOrder(t *testing.T) {
	if got := pipeline.StageExportSequences.Label(); got != "Export Sequences" {
		t.Fatalf("unexpected label %q", got)
	}
	stages := pipeline.Stages()
	if stages[0] != pipeline.StageLoad || stages[len(stages)-1] != pipeline.StageWriteAudio || len(stages) != 13 {
		t.Fatalf("unexpected stage order %v", stages)
	}
}
