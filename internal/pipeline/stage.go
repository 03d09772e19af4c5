package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage names one step of the conversion.
type Stage string

const (
	StageLoad              Stage = "load"
	StageAddIDs            Stage = "add_ids"
	StageResolveCopyOfs    Stage = "resolve_copyofs"
	StageWriteMEI          Stage = "write_mei"
	StageExportSequences   Stage = "export_sequences"
	StageSelectMovement    Stage = "select_movement"
	StageRemoveRests       Stage = "remove_rests"
	StageResolveSequencing Stage = "resolve_sequencing"
	StageWriteMSM          Stage = "write_msm"
	StageExportEvents      Stage = "export_events"
	StageWriteMIDI         Stage = "write_midi"
	StageExportAudio       Stage = "export_audio"
	StageWriteAudio        Stage = "write_audio"
)

// Stages lists every stage in execution order.
func Stages() []Stage {
	out := make([]Stage, len(rules))
	for i, r := range rules {
		out[i] = r.stage
	}
	return out
}

// Label renders the stage for humans ("Export Sequences").
func (s Stage) Label() string {
	return cases.Title(language.Und).String(strings.ReplaceAll(string(s), "_", " "))
}

// ArtifactKind identifies a written output.
type ArtifactKind string

const (
	KindMEI      ArtifactKind = "mei"
	KindDebugMEI ArtifactKind = "debug-mei"
	KindMSM      ArtifactKind = "msm"
	KindMIDI     ArtifactKind = "midi"
	KindWAV      ArtifactKind = "wav"
	KindMP3      ArtifactKind = "mp3"
)

// Extension returns the file extension for the kind, including the dot.
func (k ArtifactKind) Extension() string {
	switch k {
	case KindMEI, KindDebugMEI:
		return ".mei"
	case KindMSM:
		return ".msm"
	case KindMIDI:
		return ".mid"
	case KindWAV:
		return ".wav"
	case KindMP3:
		return ".mp3"
	default:
		return ""
	}
}

// ContentType returns the MIME type served for the kind.
func (k ArtifactKind) ContentType() string {
	switch k {
	case KindMEI, KindDebugMEI:
		return "application/mei+xml"
	case KindMSM:
		return "application/xml"
	case KindMIDI:
		return "audio/midi"
	case KindWAV:
		return "audio/wav"
	case KindMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// KindForOutput maps a request output token to its artifact kind.
func KindForOutput(token string) (ArtifactKind, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "mei":
		return KindMEI, true
	case "msm":
		return KindMSM, true
	case "midi":
		return KindMIDI, true
	case "wav":
		return KindWAV, true
	case "mp3":
		return KindMP3, true
	default:
		return "", false
	}
}

// Artifact is one file written by a run.
type Artifact struct {
	Kind     ArtifactKind
	Path     string
	Movement int
}

// Placement chooses where an artifact of the given kind is written.
type Placement func(kind ArtifactKind, movement int) string

// Result lists what a successful run wrote and which stages executed.
type Result struct {
	Artifacts []Artifact
	Stages    []Stage
}

// Artifact returns the first artifact of kind.
func (r Result) Artifact(kind ArtifactKind) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// Ran reports whether stage executed.
func (r Result) Ran(stage Stage) bool {
	for _, s := range r.Stages {
		if s == stage {
			return true
		}
	}
	return false
}
