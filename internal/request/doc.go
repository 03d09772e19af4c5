// Package request turns the raw option set supplied by a surface (CLI flags
// or HTTP fields) into an immutable conversion request.
//
// Parse validates output tokens, tempo, and movement index, accepts the usual
// boolean spellings, and applies the shared defaults. A soundbank that does
// not resolve to a readable file is not an error: the request falls back to
// the engine's built-in soundbank and records that it did.
package request
