package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"meico/internal/config"
	"meico/internal/engine"
	"meico/internal/engine/bridge"
	"meico/internal/services"
)

// scriptedExecutor answers each bridge op with a canned reply and can create
// the files the reply names.
type scriptedExecutor struct {
	replies map[string]map[string]any
	files   map[string]string
	calls   [][]string
}

func (s *scriptedExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	s.calls = append(s.calls, append([]string{binary}, args...))
	op := args[3]
	for path, content := range s.files {
		_ = os.WriteFile(path, []byte(content), 0o644)
	}
	onLine("INFO engine warming up")
	resp, ok := s.replies[op]
	if !ok {
		resp = map[string]any{"ok": true}
	}
	payload, _ := json.Marshal(resp)
	onLine(string(payload))
	if ok, _ := resp["ok"].(bool); !ok {
		return errors.New("exit status 1")
	}
	return nil
}

func (s *scriptedExecutor) lastArgs() []string {
	return s.calls[len(s.calls)-1]
}

func newClient(t *testing.T, exec bridge.Executor) (*bridge.Client, string) {
	t.Helper()
	work := t.TempDir()
	client, err := bridge.New(config.Engine{JavaBinary: "java", JarPath: "/opt/meico.jar"}, work, bridge.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, work
}

func TestNewRequiresJarAndWorkDir(t *testing.T) {
	if _, err := bridge.New(config.Engine{JavaBinary: "java"}, t.TempDir()); err == nil {
		t.Fatal("expected error without jar path")
	}
	if _, err := bridge.New(config.Engine{JavaBinary: "java", JarPath: "x.jar"}, ""); err == nil {
		t.Fatal("expected error without working directory")
	}
}

func TestLoadStagesUploadAndPassesValidate(t *testing.T) {
	exec := &scriptedExecutor{}
	client, work := newClient(t, exec)
	exec.replies = map[string]map[string]any{
		"load": {"ok": true, "paths": []string{filepath.Join(work, "song.work.mei")}},
	}

	if _, err := client.Load(context.Background(), engine.FromBytes("song.mei", []byte("<mei/>")), true); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	staged := filepath.Join(work, "source-song.mei")
	data, err := os.ReadFile(staged)
	if err != nil || string(data) != "<mei/>" {
		t.Fatalf("expected staged upload, got %q err=%v", data, err)
	}
	args := exec.lastArgs()
	if args[0] != "java" || args[1] != "-cp" || args[2] != "/opt/meico.jar" || args[3] != "meico.app.Bridge" || args[4] != "load" {
		t.Fatalf("unexpected command prefix: %v", args)
	}
	if !slices.Contains(args, "--validate") || !slices.Contains(args, staged) {
		t.Fatalf("expected validate flag and staged input, got %v", args)
	}
}

func TestLoadClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		target error
	}{
		{"invalid", "invalid_input", services.ErrInvalidInput},
		{"empty", "empty", engine.ErrEmptyDocument},
		{"dependency", "missing_dependency", services.ErrMissingDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{replies: map[string]map[string]any{
				"load": {"ok": false, "code": tt.code, "error": "boom"},
			}}
			client, _ := newClient(t, exec)
			_, err := client.Load(context.Background(), engine.FromPath("/scores/a.mei"), false)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestUnclassifiedFailureCarriesMessage(t *testing.T) {
	exec := &scriptedExecutor{replies: map[string]map[string]any{
		"load": {"ok": false, "error": "NullPointerException"},
	}}
	client, _ := newClient(t, exec)
	_, err := client.Load(context.Background(), engine.FromPath("/scores/a.mei"), false)
	if err == nil || !strings.Contains(err.Error(), "NullPointerException") {
		t.Fatalf("expected engine message, got %v", err)
	}
	if services.Kind(err) != "internal" {
		t.Fatalf("unclassified bridge failures should stay unclassified, got %s", services.Kind(err))
	}
}

func TestMissingJavaIsMissingDependency(t *testing.T) {
	client, err := bridge.New(config.Engine{JavaBinary: "meico-test-no-such-java", JarPath: "/opt/meico.jar"}, t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = client.Load(context.Background(), engine.FromPath("/scores/a.mei"), false)
	if !errors.Is(err, services.ErrMissingDependency) {
		t.Fatalf("expected missing dependency, got %v", err)
	}
}

func TestConversionChainPassesOptionsAndCopiesArtifacts(t *testing.T) {
	exec := &scriptedExecutor{}
	client, work := newClient(t, exec)
	doc := filepath.Join(work, "a.work.mei")
	msm0 := filepath.Join(work, "a-0.msm")
	msm1 := filepath.Join(work, "a-1.msm")
	mid := filepath.Join(work, "a-1.mid")
	pcm := filepath.Join(work, "a-1.pcm")
	wav := filepath.Join(work, "a-1.wav")
	exec.files = map[string]string{doc: "mei", msm0: "msm0", msm1: "msm1", mid: "midi", pcm: "pcm", wav: "wave"}
	exec.replies = map[string]map[string]any{
		"load":         {"ok": true, "paths": []string{doc}},
		"export-msm":   {"ok": true, "paths": []string{msm0, msm1}},
		"export-midi":  {"ok": true, "paths": []string{mid}},
		"export-audio": {"ok": true, "paths": []string{pcm}},
		"encode-wav":   {"ok": true, "paths": []string{wav}},
	}
	ctx := context.Background()

	d, err := client.Load(ctx, engine.FromPath("/scores/a.mei"), false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	movements, err := d.ExportSequences(ctx, engine.SequenceOptions{TicksPerBeat: 720, SuppressChannel10: true})
	if err != nil {
		t.Fatalf("ExportSequences: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	args := exec.lastArgs()
	for _, want := range []string{"--ppq", "720", "--dont-use-channel-10", "--no-cleanup"} {
		if !slices.Contains(args, want) {
			t.Fatalf("export-msm args missing %q: %v", want, args)
		}
	}
	if slices.Contains(args, "--ignore-expansions") {
		t.Fatalf("unexpected --ignore-expansions: %v", args)
	}

	ev, err := movements[1].ExportEvents(ctx, 90, false)
	if err != nil {
		t.Fatalf("ExportEvents: %v", err)
	}
	args = exec.lastArgs()
	if !slices.Contains(args, msm1) || !slices.Contains(args, "90") || !slices.Contains(args, "--no-program-changes") {
		t.Fatalf("unexpected export-midi args: %v", args)
	}

	out := t.TempDir()
	if err := ev.WriteTo(ctx, filepath.Join(out, "a.mid")); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(out, "a.mid")); string(data) != "midi" {
		t.Fatalf("unexpected midi copy %q", data)
	}

	au, err := ev.ExportAudio(ctx, "/banks/fluid.sf2")
	if err != nil {
		t.Fatalf("ExportAudio: %v", err)
	}
	if args := exec.lastArgs(); !slices.Contains(args, "/banks/fluid.sf2") {
		t.Fatalf("expected soundbank argument, got %v", args)
	}
	if err := au.WriteWave(ctx, filepath.Join(out, "a.wav")); err != nil {
		t.Fatalf("WriteWave: %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(out, "a.wav")); string(data) != "wave" {
		t.Fatalf("unexpected wave copy %q", data)
	}
}

func TestExportAudioOmitsEmptySoundbank(t *testing.T) {
	exec := &scriptedExecutor{}
	client, work := newClient(t, exec)
	exec.replies = map[string]map[string]any{
		"load":         {"ok": true, "paths": []string{filepath.Join(work, "a.work.mei")}},
		"export-msm":   {"ok": true, "paths": []string{filepath.Join(work, "a.msm")}},
		"export-midi":  {"ok": true, "paths": []string{filepath.Join(work, "a.mid")}},
		"export-audio": {"ok": true, "paths": []string{filepath.Join(work, "a.pcm")}},
	}
	ctx := context.Background()
	d, _ := client.Load(ctx, engine.FromPath("/scores/a.mei"), false)
	movements, _ := d.ExportSequences(ctx, engine.SequenceOptions{TicksPerBeat: 720, Cleanup: true})
	ev, _ := movements[0].ExportEvents(ctx, 120, true)
	if _, err := ev.ExportAudio(ctx, ""); err != nil {
		t.Fatalf("ExportAudio: %v", err)
	}
	if args := exec.lastArgs(); slices.Contains(args, "--soundbank") {
		t.Fatalf("empty soundbank must use the engine default, got %v", args)
	}
}

func TestFactoryReportsMissingDependencies(t *testing.T) {
	factory := bridge.NewFactory(config.Engine{
		JavaBinary: "meico-test-no-such-java",
		JarPath:    filepath.Join(t.TempDir(), "missing.jar"),
	})
	eng, err := factory.Engine(t.TempDir())
	if eng != nil {
		t.Fatal("expected no engine when dependencies are missing")
	}
	if !errors.Is(err, services.ErrMissingDependency) {
		t.Fatalf("expected missing dependency, got %v", err)
	}
	for _, name := range []string{"Java", "meico engine"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %q in error, got %v", name, err)
		}
	}
}

func TestFactoryBuildsClientWhenDependenciesPresent(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "meico.jar")
	if err := os.WriteFile(jar, []byte("jar"), 0o644); err != nil {
		t.Fatalf("write jar: %v", err)
	}
	bin := filepath.Join(dir, "java")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write java stub: %v", err)
	}
	factory := bridge.NewFactory(config.Engine{JavaBinary: bin, JarPath: jar})
	if err := factory.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	eng, err := factory.Engine(t.TempDir())
	if err != nil || eng == nil {
		t.Fatalf("Engine: %v", err)
	}
}
