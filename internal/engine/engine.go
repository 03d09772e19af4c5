package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyDocument reports that the engine loaded the source but found no
// document content in it.
var ErrEmptyDocument = errors.New("empty document")

// Source is the document handed to the engine: either a filesystem path or
// in-memory bytes received over HTTP.
type Source struct {
	Path string
	Data []byte
	// Name is the display name used for logs and scratch file names.
	Name string
}

// FromPath builds a Source backed by a file on disk.
func FromPath(path string) Source {
	return Source{Path: path, Name: filepath.Base(path)}
}

// FromBytes builds a Source from uploaded document bytes.
func FromBytes(name string, data []byte) Source {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload.mei"
	}
	return Source{Data: data, Name: name}
}

// InMemory reports whether the source carries its bytes directly.
func (s Source) InMemory() bool {
	return s.Path == ""
}

// Stem returns the source name without its extension.
func (s Source) Stem() string {
	name := s.Name
	if name == "" && s.Path != "" {
		name = filepath.Base(s.Path)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// SequenceOptions controls performance-sequence export.
type SequenceOptions struct {
	TicksPerBeat      int
	SuppressChannel10 bool
	IgnoreExpansions  bool
	// Cleanup lets the engine drop intermediate annotations once the export
	// is done. Debug runs keep them so the snapshot shows the engine's view.
	Cleanup bool
}

// Engine loads notation documents.
type Engine interface {
	Load(ctx context.Context, src Source, validate bool) (Document, error)
}

// Document is a loaded notation document.
type Document interface {
	AddIDs(ctx context.Context) error
	ResolveCopyOfs(ctx context.Context) error
	ExportSequences(ctx context.Context, opts SequenceOptions) ([]Movement, error)
	WriteTo(ctx context.Context, path string) error
}

// Movement is one performance sequence exported from a document.
type Movement interface {
	RemoveRests(ctx context.Context) error
	ResolveSequencing(ctx context.Context) error
	ExportEvents(ctx context.Context, tempoBPM float64, programChanges bool) (EventStream, error)
	WriteTo(ctx context.Context, path string) error
}

// EventStream is a timed event stream ready to be written as MIDI.
type EventStream interface {
	ExportAudio(ctx context.Context, soundbank string) (Audio, error)
	WriteTo(ctx context.Context, path string) error
}

// Audio is rendered audio awaiting encoding.
type Audio interface {
	WriteWave(ctx context.Context, path string) error
	WriteMP3(ctx context.Context, path string) error
}
