// Package constellation loads satellites and ground stations into a
// core.Network. It is the boundary between on-disk catalogues and the
// simulation arena.
package constellation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// ErrMalformedTLE is returned when a TLE record cannot be parsed.
var ErrMalformedTLE = errors.New("malformed TLE")

// TLE is one two-line element set with its optional name line.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// ReadTLE parses 2-line and 3-line records. Blank lines are skipped. A
// record without a name line is named after its catalogue number.
func ReadTLE(r io.Reader) ([]TLE, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() (string, bool) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimRight(sc.Text(), "\r ")
			if strings.TrimSpace(line) != "" {
				return line, true
			}
		}
		return "", false
	}

	var out []TLE
	for {
		first, ok := next()
		if !ok {
			break
		}
		var rec TLE
		if !strings.HasPrefix(first, "1 ") {
			rec.Name = strings.TrimSpace(strings.TrimPrefix(first, "0 "))
			if first, ok = next(); !ok || !strings.HasPrefix(first, "1 ") {
				return nil, fmt.Errorf("%w: line %d: expected line 1 after name %q", ErrMalformedTLE, lineNo, rec.Name)
			}
		}
		second, ok := next()
		if !ok || !strings.HasPrefix(second, "2 ") {
			return nil, fmt.Errorf("%w: line %d: expected line 2", ErrMalformedTLE, lineNo)
		}
		if len(first) < 69 || len(second) < 69 {
			return nil, fmt.Errorf("%w: line %d: short record", ErrMalformedTLE, lineNo)
		}
		rec.Line1, rec.Line2 = first, second
		if rec.Name == "" {
			rec.Name = strings.TrimSpace(first[2:7])
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read TLE: %w", err)
	}
	return out, nil
}

// Motion returns the SGP4 model for the record.
func (t TLE) Motion() (*core.SGP4Motion, error) {
	m, err := core.NewSGP4Motion(t.Line1, t.Line2)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTLE, t.Name, err)
	}
	return m, nil
}

// LoadTLE reads a TLE file.
func LoadTLE(path string) ([]TLE, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open TLE file: %w", err)
	}
	defer f.Close()
	return ReadTLE(f)
}
