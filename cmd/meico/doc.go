// Command meico converts MEI documents into MSM, MIDI, Wave, and MP3 files.
//
// The root command takes one MEI file and writes the requested outputs next
// to it, printing a line per executed pipeline stage. Subcommands cover
// configuration bootstrap (`meico config init`) and an environment check
// (`meico check`) that reports whether the Java runtime and the engine jar
// are available. Exit codes follow sysexits where one applies.
package main
