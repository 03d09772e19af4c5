// Package bridge drives the meico engine through its command-line bridge.
//
// Each engine operation is one subprocess invocation
// (java -cp <jar> <bridge class> <op> --workdir <dir> ...). Intermediate
// documents, sequences, and event streams live as files in the working
// directory, which is always a request-owned scratch area. The bridge prints a
// single JSON reply line describing the files it produced or the failure it
// hit; this package turns those replies into engine objects and classified
// errors.
package bridge
