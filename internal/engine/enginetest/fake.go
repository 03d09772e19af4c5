// Package enginetest provides an in-memory engine for pipeline and surface
// tests. Every operation is counted, can be made to fail or panic, and writes
// deterministic text artifacts that describe the options it received.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"meico/internal/engine"
	"meico/internal/services"
)

// Operation names used for counters and failure injection.
const (
	OpLoad              = "load"
	OpAddIDs            = "add_ids"
	OpResolveCopyOfs    = "resolve_copyofs"
	OpWriteMEI          = "write_mei"
	OpExportSequences   = "export_sequences"
	OpRemoveRests       = "remove_rests"
	OpResolveSequencing = "resolve_sequencing"
	OpWriteMSM          = "write_msm"
	OpExportEvents      = "export_events"
	OpWriteMIDI         = "write_midi"
	OpExportAudio       = "export_audio"
	OpWriteWave         = "write_wave"
	OpWriteMP3          = "write_mp3"
)

// Engine is a fake engine.Engine.
type Engine struct {
	// Movements is the number of sequences ExportSequences returns.
	Movements int
	// Empty makes Load report an empty document.
	Empty bool

	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	panics map[string]any
	writes []string
}

// New returns a fake engine producing the given number of movements.
func New(movements int) *Engine {
	return &Engine{Movements: movements}
}

// FailOn makes op return err.
func (e *Engine) FailOn(op string, err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail == nil {
		e.fail = map[string]error{}
	}
	e.fail[op] = err
	return e
}

// PanicOn makes op panic with value.
func (e *Engine) PanicOn(op string, value any) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panics == nil {
		e.panics = map[string]any{}
	}
	e.panics[op] = value
	return e
}

// Calls returns how often op ran.
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// TotalCalls sums every counted operation.
func (e *Engine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.calls {
		total += n
	}
	return total
}

// Writes lists every path written, in order.
func (e *Engine) Writes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.writes...)
}

func (e *Engine) enter(op string) error {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[op]++
	err := e.fail[op]
	p, shouldPanic := e.panics[op]
	e.mu.Unlock()
	if shouldPanic {
		panic(p)
	}
	return err
}

func (e *Engine) write(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	e.mu.Lock()
	e.writes = append(e.writes, path)
	e.mu.Unlock()
	return nil
}

// Load implements engine.Engine.
func (e *Engine) Load(ctx context.Context, src engine.Source, validate bool) (engine.Document, error) {
	if err := e.enter(OpLoad); err != nil {
		return nil, err
	}
	data := src.Data
	if !src.InMemory() {
		raw, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	body := strings.TrimSpace(string(data))
	if e.Empty || body == "" {
		return nil, engine.ErrEmptyDocument
	}
	if validate && strings.Contains(body, "invalid") {
		return nil, services.Wrap(services.ErrInvalidInput, "", "validate", "document is not valid MEI", nil)
	}
	return &document{eng: e, name: src.Stem()}, nil
}

type document struct {
	eng      *Engine
	name     string
	ids      bool
	resolved bool
}

func (d *document) AddIDs(ctx context.Context) error {
	if err := d.eng.enter(OpAddIDs); err != nil {
		return err
	}
	d.ids = true
	return nil
}

func (d *document) ResolveCopyOfs(ctx context.Context) error {
	if err := d.eng.enter(OpResolveCopyOfs); err != nil {
		return err
	}
	d.resolved = true
	return nil
}

func (d *document) ExportSequences(ctx context.Context, opts engine.SequenceOptions) ([]engine.Movement, error) {
	if err := d.eng.enter(OpExportSequences); err != nil {
		return nil, err
	}
	out := make([]engine.Movement, 0, d.eng.Movements)
	for i := 0; i < d.eng.Movements; i++ {
		out = append(out, &movement{eng: d.eng, index: i, opts: opts, rests: true})
	}
	return out, nil
}

func (d *document) WriteTo(ctx context.Context, path string) error {
	if err := d.eng.enter(OpWriteMEI); err != nil {
		return err
	}
	return d.eng.write(path, fmt.Sprintf("mei name=%s ids=%t copyofs_resolved=%t\n", d.name, d.ids, d.resolved))
}

type movement struct {
	eng       *Engine
	index     int
	opts      engine.SequenceOptions
	rests     bool
	sequenced bool
}

func (m *movement) RemoveRests(ctx context.Context) error {
	if err := m.eng.enter(OpRemoveRests); err != nil {
		return err
	}
	m.rests = false
	return nil
}

func (m *movement) ResolveSequencing(ctx context.Context) error {
	if err := m.eng.enter(OpResolveSequencing); err != nil {
		return err
	}
	m.sequenced = true
	return nil
}

func (m *movement) ExportEvents(ctx context.Context, tempoBPM float64, programChanges bool) (engine.EventStream, error) {
	if err := m.eng.enter(OpExportEvents); err != nil {
		return nil, err
	}
	return &events{mov: m, tempo: tempoBPM, programChanges: programChanges}, nil
}

func (m *movement) WriteTo(ctx context.Context, path string) error {
	if err := m.eng.enter(OpWriteMSM); err != nil {
		return err
	}
	return m.eng.write(path, fmt.Sprintf("msm movement=%d ppq=%d rests=%t sequenced=%t channel10=%t expansions=%t\n",
		m.index, m.opts.TicksPerBeat, m.rests, m.sequenced, !m.opts.SuppressChannel10, !m.opts.IgnoreExpansions))
}

type events struct {
	mov            *movement
	tempo          float64
	programChanges bool
}

func (ev *events) ExportAudio(ctx context.Context, soundbank string) (engine.Audio, error) {
	if err := ev.mov.eng.enter(OpExportAudio); err != nil {
		return nil, err
	}
	if soundbank == "" {
		soundbank = "builtin"
	}
	return &audio{ev: ev, soundbank: soundbank}, nil
}

func (ev *events) WriteTo(ctx context.Context, path string) error {
	if err := ev.mov.eng.enter(OpWriteMIDI); err != nil {
		return err
	}
	return ev.mov.eng.write(path, ev.describe("midi"))
}

func (ev *events) describe(kind string) string {
	return fmt.Sprintf("%s movement=%d tempo=%g program_changes=%t channel10=%t\n",
		kind, ev.mov.index, ev.tempo, ev.programChanges, !ev.mov.opts.SuppressChannel10)
}

type audio struct {
	ev        *events
	soundbank string
}

func (a *audio) WriteWave(ctx context.Context, path string) error {
	if err := a.ev.mov.eng.enter(OpWriteWave); err != nil {
		return err
	}
	return a.ev.mov.eng.write(path, strings.TrimSuffix(a.ev.describe("wav"), "\n")+" soundbank="+a.soundbank+"\n")
}

func (a *audio) WriteMP3(ctx context.Context, path string) error {
	if err := a.ev.mov.eng.enter(OpWriteMP3); err != nil {
		return err
	}
	return a.ev.mov.eng.write(path, strings.TrimSuffix(a.ev.describe("mp3"), "\n")+" soundbank="+a.soundbank+"\n")
}
