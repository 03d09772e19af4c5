package testsupport

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

// MEIDocument returns a small MEI body with the requested number of movements.
func MEIDocument(movements int) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<mei xmlns="http://www.music-encoding.org/ns/mei" meiversion="4.0.1">` + "\n")
	b.WriteString("  <music><body>\n")
	for i := 0; i < movements; i++ {
		fmt.Fprintf(&b, "    <mdiv n=\"%d\"><score/></mdiv>\n", i+1)
	}
	b.WriteString("  </body></music>\n</mei>\n")
	return []byte(b.String())
}

// WriteMEI writes an MEI document named name into dir and returns its path.
func WriteMEI(t testing.TB, dir, name string, movements int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	WriteBytes(t, path, MEIDocument(movements))
	return path
}
