package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"meico/internal/config"
	"meico/internal/engine"
	"meico/internal/history"
	"meico/internal/logging"
	"meico/internal/pipeline"
	"meico/internal/request"
	"meico/internal/scratch"
	"meico/internal/services"
)

const (
	surfaceHTTP = "http"

	uploadField     = "mei"
	noUploadMessage = "No MEI file provided."

	// multipartMemory is how much of an upload is held in memory before
	// spilling to a temp file.
	multipartMemory = 8 << 20
)

var errNoUpload = errors.New(noUploadMessage)

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := s.daemon.Config()

	requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	ctx := services.WithRequestID(services.WithSurface(r.Context(), surfaceHTTP), requestID)
	started := time.Now()

	var outcome error
	defer func() { s.daemon.Metrics().ObserveRequest(surfaceHTTP, outcome) }()
	fail := func(err error) {
		outcome = err
		s.writeFailure(ctx, w, err)
	}

	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes())
	name, data, err := readUpload(r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			outcome = services.Wrap(services.ErrConfiguration, "request", uploadField, "upload too large", err)
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d MiB.", cfg.Service.MaxUploadMiB))
			return
		}
		fail(services.Wrap(services.ErrMissingInputFile, "request", uploadField, noUploadMessage, err))
		return
	}

	opts, kind, err := requestOptions(r, cfg)
	if err != nil {
		fail(err)
		return
	}
	rc, err := request.Parse(opts, request.Defaults{
		Tempo:             cfg.Defaults.Tempo,
		SuppressChannel10: cfg.Defaults.DontUseChannel10,
	})
	if err != nil {
		fail(err)
		return
	}

	area, err := s.daemon.Scratch().Acquire(ctx)
	if err != nil {
		fail(err)
		return
	}
	defer s.daemon.Scratch().Release(area)

	eng, err := s.newEngine(area.Path())
	if err != nil {
		fail(err)
		return
	}
	seq := pipeline.New(eng,
		pipeline.WithLogger(s.logger),
		pipeline.WithObserver(s.daemon.Metrics()),
		pipeline.WithTicksPerBeat(cfg.Engine.TicksPerBeat),
	)
	src := engine.FromBytes(name, data)
	result, runErr := seq.Run(ctx, src, rc, scratchPlacement(area))
	s.record(ctx, history.NewRun(requestID, surfaceHTTP, src, rc, started, result, runErr))
	if runErr != nil {
		fail(runErr)
		return
	}

	artifact, ok := result.Artifact(kind)
	if !ok {
		fail(services.Wrap(services.ErrEmptyResult, "respond", string(kind), fmt.Sprintf("no %s artifact was produced", kind), nil))
		return
	}
	if err := s.streamArtifact(w, artifact); err != nil {
		outcome = err
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "artifact stream interrupted", "artifact_stream_failed",
			logging.String("artifact", artifact.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the client disconnected or the artifact vanished"),
		)
	}
}

// readUpload returns the uploaded document name and bytes.
func readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, err
		}
		return "", nil, errNoUpload
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return "", nil, errNoUpload
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

// requestOptions collects the option set from the query string and form
// fields and resolves the soundbank name against the server mapping.
func requestOptions(r *http.Request, cfg *config.Config) (request.Options, pipeline.ArtifactKind, error) {
	var outputs []string
	for _, value := range r.Form["output"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			outputs = append(outputs, trimmed)
		}
	}
	switch len(outputs) {
	case 0:
		return request.Options{}, "", optionError("output", fmt.Sprintf("output is required (one of %s)", strings.Join(request.Formats, ", ")))
	case 1:
	default:
		return request.Options{}, "", optionError("output", "exactly one output may be requested")
	}
	kind, ok := pipeline.KindForOutput(outputs[0])
	if !ok {
		return request.Options{}, "", optionError("output", fmt.Sprintf("unknown output format %q (want one of %s)", outputs[0], strings.Join(request.Formats, ", ")))
	}

	opts := request.Options{
		Outputs:           outputs,
		Validate:          r.FormValue("validate"),
		AddIDs:            r.FormValue("add_ids"),
		ResolveCopyOfs:    r.FormValue("resolve_copy_ofs"),
		NoProgramChanges:  r.FormValue("no_program_changes"),
		DontUseChannel10:  r.FormValue("dont_use_channel_10"),
		IgnoreExpansions:  r.FormValue("ignore_expansions"),
		IgnoreRepetitions: r.FormValue("ignore_repetitions"),
		Debug:             r.FormValue("debug"),
		Tempo:             r.FormValue("tempo"),
		Movement:          r.FormValue("movement"),
	}
	if name := strings.TrimSpace(r.FormValue("soundbank")); name != "" {
		path, ok := cfg.SoundbankPath(name)
		if !ok {
			message := fmt.Sprintf("unknown soundbank %q", name)
			if names := cfg.SoundbankNames(); len(names) > 0 {
				message += fmt.Sprintf(" (available: %s)", strings.Join(names, ", "))
			}
			return request.Options{}, "", optionError("soundbank", message)
		}
		opts.Soundbank = path
	}
	return opts, kind, nil
}

func optionError(field, message string) error {
	return services.Wrap(services.ErrConfiguration, "request", field, message, nil)
}

func scratchPlacement(area *scratch.Area) pipeline.Placement {
	return func(kind pipeline.ArtifactKind, movement int) string {
		return area.File(fmt.Sprintf("out-%s-%d%s", kind, movement, kind.Extension()))
	}
}

func (s *Server) streamArtifact(w http.ResponseWriter, artifact pipeline.Artifact) error {
	f, err := os.Open(artifact.Path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return err
	}

	header := w.Header()
	header.Set("Content-Type", artifact.Kind.ContentType())
	header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="meico%s"`, artifact.Kind.Extension()))
	header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, f)
	return err
}

func (s *Server) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	details := services.Details(err)
	message := details.Message
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	logger := logging.WithContext(ctx, s.logger)
	attrs := []logging.Attr{
		logging.String("error_kind", details.Kind),
		logging.Int("status", status),
		logging.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "conversion request failed", "request_failed", attrs...)
	} else {
		logger.Info("conversion request rejected", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "request_rejected"))...)...)
	}
	s.writeError(w, status, message)
}

func (s *Server) record(ctx context.Context, run history.Run) {
	store := s.daemon.History()
	if store == nil {
		return
	}
	if err := store.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "failed to record conversion run", "history_record_failed",
			logging.String("run_id", run.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from /api/runs"),
		)
	}
}
