package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"meico/internal/config"
	"meico/internal/engine"
	"meico/internal/fileutil"
	"meico/internal/logging"
	"meico/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger for bridge diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is an engine.Engine backed by the bridge subprocess.
type Client struct {
	java    string
	jar     string
	class   string
	workDir string
	exec    Executor
	logger  *slog.Logger
}

var _ engine.Engine = (*Client)(nil)

// New constructs a bridge client whose intermediate files live in workDir.
func New(cfg config.Engine, workDir string, opts ...Option) (*Client, error) {
	java := strings.TrimSpace(cfg.JavaBinary)
	if java == "" {
		return nil, errors.New("java binary required")
	}
	if strings.TrimSpace(cfg.JarPath) == "" {
		return nil, errors.New("engine jar path required")
	}
	if strings.TrimSpace(workDir) == "" {
		return nil, errors.New("working directory required")
	}
	class := strings.TrimSpace(cfg.BridgeClass)
	if class == "" {
		class = "meico.app.Bridge"
	}
	client := &Client{
		java:    java,
		jar:     cfg.JarPath,
		class:   class,
		workDir: workDir,
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "engine-bridge")
	return client, nil
}

// reply is the single JSON line the bridge prints per invocation.
type reply struct {
	OK    bool     `json:"ok"`
	Paths []string `json:"paths"`
	Error string   `json:"error"`
	Code  string   `json:"code"`
}

const (
	codeInvalidInput      = "invalid_input"
	codeEmpty             = "empty"
	codeMissingDependency = "missing_dependency"
)

func (c *Client) call(ctx context.Context, op string, args ...string) (reply, error) {
	full := make([]string, 0, len(args)+6)
	full = append(full, "-cp", c.jar, c.class, op, "--workdir", c.workDir)
	full = append(full, args...)

	var (
		resp    reply
		decoded bool
	)
	// A request runs to completion once started; only logging values flow
	// from the caller's context.
	runErr := c.exec.Run(context.WithoutCancel(ctx), c.java, full, func(line string) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") {
			var candidate reply
			if err := json.Unmarshal([]byte(trimmed), &candidate); err == nil {
				resp = candidate
				decoded = true
				return
			}
		}
		if trimmed != "" {
			c.logger.Debug("bridge output", logging.String("op", op), logging.String("line", trimmed))
		}
	})

	if runErr != nil && errors.Is(runErr, exec.ErrNotFound) {
		return reply{}, services.Wrap(services.ErrMissingDependency, "", op, "java runtime not found", runErr)
	}
	if decoded && !resp.OK {
		return resp, classify(op, resp)
	}
	if runErr != nil {
		return reply{}, fmt.Errorf("bridge %s: %w", op, runErr)
	}
	if !decoded {
		return reply{}, fmt.Errorf("bridge %s: no reply", op)
	}
	return resp, nil
}

func classify(op string, resp reply) error {
	message := strings.TrimSpace(resp.Error)
	if message == "" {
		message = "engine reported failure"
	}
	switch resp.Code {
	case codeInvalidInput:
		return services.Wrap(services.ErrInvalidInput, "", op, message, nil)
	case codeEmpty:
		return fmt.Errorf("%s: %w", message, engine.ErrEmptyDocument)
	case codeMissingDependency:
		return services.Wrap(services.ErrMissingDependency, "", op, message, nil)
	default:
		return fmt.Errorf("bridge %s: %s", op, message)
	}
}

func firstPath(op string, resp reply) (string, error) {
	if len(resp.Paths) == 0 || strings.TrimSpace(resp.Paths[0]) == "" {
		return "", fmt.Errorf("bridge %s: reply carried no output path", op)
	}
	return resp.Paths[0], nil
}

// Load implements engine.Engine.
func (c *Client) Load(ctx context.Context, src engine.Source, validate bool) (engine.Document, error) {
	input := src.Path
	if src.InMemory() {
		input = filepath.Join(c.workDir, "source-"+src.Name)
		if err := fileutil.WriteFile(input, src.Data, 0o644); err != nil {
			return nil, fmt.Errorf("stage upload: %w", err)
		}
	}
	args := []string{"--input", input, "--out", filepath.Join(c.workDir, src.Stem()+".work.mei")}
	if validate {
		args = append(args, "--validate")
	}
	resp, err := c.call(ctx, "load", args...)
	if err != nil {
		return nil, err
	}
	path, err := firstPath("load", resp)
	if err != nil {
		return nil, err
	}
	return &document{c: c, path: path}, nil
}

type document struct {
	c    *Client
	path string
}

func (d *document) AddIDs(ctx context.Context) error {
	_, err := d.c.call(ctx, "add-ids", "--mei", d.path)
	return err
}

func (d *document) ResolveCopyOfs(ctx context.Context) error {
	_, err := d.c.call(ctx, "resolve-copyofs", "--mei", d.path)
	return err
}

func (d *document) ExportSequences(ctx context.Context, opts engine.SequenceOptions) ([]engine.Movement, error) {
	args := []string{"--mei", d.path, "--ppq", strconv.Itoa(opts.TicksPerBeat)}
	if opts.SuppressChannel10 {
		args = append(args, "--dont-use-channel-10")
	}
	if opts.IgnoreExpansions {
		args = append(args, "--ignore-expansions")
	}
	if !opts.Cleanup {
		args = append(args, "--no-cleanup")
	}
	resp, err := d.c.call(ctx, "export-msm", args...)
	if err != nil {
		return nil, err
	}
	movements := make([]engine.Movement, 0, len(resp.Paths))
	for _, p := range resp.Paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		movements = append(movements, &movement{c: d.c, path: p})
	}
	return movements, nil
}

func (d *document) WriteTo(ctx context.Context, path string) error {
	return fileutil.CopyFile(d.path, path)
}

type movement struct {
	c    *Client
	path string
}

func (m *movement) RemoveRests(ctx context.Context) error {
	_, err := m.c.call(ctx, "remove-rests", "--msm", m.path)
	return err
}

func (m *movement) ResolveSequencing(ctx context.Context) error {
	_, err := m.c.call(ctx, "resolve-sequencing", "--msm", m.path)
	return err
}

func (m *movement) ExportEvents(ctx context.Context, tempoBPM float64, programChanges bool) (engine.EventStream, error) {
	args := []string{"--msm", m.path, "--tempo", strconv.FormatFloat(tempoBPM, 'f', -1, 64)}
	if !programChanges {
		args = append(args, "--no-program-changes")
	}
	resp, err := m.c.call(ctx, "export-midi", args...)
	if err != nil {
		return nil, err
	}
	path, err := firstPath("export-midi", resp)
	if err != nil {
		return nil, err
	}
	return &events{c: m.c, path: path}, nil
}

func (m *movement) WriteTo(ctx context.Context, path string) error {
	return fileutil.CopyFile(m.path, path)
}

type events struct {
	c    *Client
	path string
}

func (e *events) ExportAudio(ctx context.Context, soundbank string) (engine.Audio, error) {
	args := []string{"--midi", e.path}
	if soundbank != "" {
		args = append(args, "--soundbank", soundbank)
	}
	resp, err := e.c.call(ctx, "export-audio", args...)
	if err != nil {
		return nil, err
	}
	path, err := firstPath("export-audio", resp)
	if err != nil {
		return nil, err
	}
	return &audio{c: e.c, path: path}, nil
}

func (e *events) WriteTo(ctx context.Context, path string) error {
	return fileutil.CopyFile(e.path, path)
}

type audio struct {
	c    *Client
	path string
}

func (a *audio) WriteWave(ctx context.Context, path string) error {
	return a.encode(ctx, "encode-wav", ".wav", path)
}

func (a *audio) WriteMP3(ctx context.Context, path string) error {
	return a.encode(ctx, "encode-mp3", ".mp3", path)
}

func (a *audio) encode(ctx context.Context, op, ext, target string) error {
	out := strings.TrimSuffix(a.path, filepath.Ext(a.path)) + ext
	resp, err := a.c.call(ctx, op, "--audio", a.path, "--out", out)
	if err != nil {
		return err
	}
	if len(resp.Paths) > 0 && strings.TrimSpace(resp.Paths[0]) != "" {
		out = resp.Paths[0]
	}
	return fileutil.CopyFile(out, target)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine == nil {
				continue
			}
			mu.Lock()
			onLine(scanner.Text())
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
