package interval

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewPositionSetOpts defines behavior of this package's BED-loading
// function(s).
type NewPositionSetOpts struct {
	// OneBasedInput interprets the interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).  In this mode a line
	// with only two columns ("chr1\t1234") names a single position.
	OneBasedInput bool
}

// PositionSet is a per-contig interval-union.  Each contig maps to a
// length-2N endpoint sequence, where the (0-based) start position of interval
// #k is in element [2k] and the end position is in element [2k+1], and the
// intervals are stored in increasing order.
//
// A PositionSet is immutable after construction, so it can be shared by
// concurrent scans.  Use Cursor for fast sequential queries.
type PositionSet struct {
	nameMap map[string][]PosType
}

// Endpoints returns the endpoint sequence for the given contig (nil if the
// contig has no intervals).
func (s *PositionSet) Endpoints(chrName string) []PosType {
	if s == nil {
		return nil
	}
	return s.nameMap[chrName]
}

// Contains checks whether the (0-based) interval [pos, pos+1) is contained
// within the set.
func (s *PositionSet) Contains(chrName string, pos PosType) bool {
	return NewEndpointIndex(pos, s.Endpoints(chrName)).Contained()
}

// Cursor returns a sequential-query cursor for the given contig.
func (s *PositionSet) Cursor(chrName string) Cursor {
	return NewCursor(s.Endpoints(chrName))
}

// Intersects checks whether [start, end) on the given contig intersects the
// set.
func (s *PositionSet) Intersects(chrName string, start, end PosType) bool {
	return len(ClipEndpoints(s.Endpoints(chrName), start, end)) != 0
}

// NBase returns the total number of positions in the set.
func (s *PositionSet) NBase() int {
	n := 0
	for _, endpoints := range s.nameMap {
		for i := 0; i < len(endpoints); i += 2 {
			n += int(endpoints[i+1] - endpoints[i])
		}
	}
	return n
}

// NewPositionSetFromEntries initializes a PositionSet from an []Entry.  The
// entries do not need to be sorted; overlapping and touching intervals are
// merged and empty ones are dropped.
func NewPositionSetFromEntries(entries []Entry) (*PositionSet, error) {
	sorted := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Start0 < 0 {
			return nil, fmt.Errorf("interval.NewPositionSetFromEntries: negative start coordinate in %v", entry)
		}
		if (entry.End < entry.Start0) || (entry.End >= PosTypeMax) {
			return nil, fmt.Errorf("interval.NewPositionSetFromEntries: invalid coordinate pair [%d, %d)", entry.Start0, entry.End)
		}
		if entry.End != entry.Start0 {
			sorted = append(sorted, entry)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RefName != sorted[j].RefName {
			return sorted[i].RefName < sorted[j].RefName
		}
		return sorted[i].Start0 < sorted[j].Start0
	})
	s := &PositionSet{nameMap: make(map[string][]PosType)}
	for _, entry := range sorted {
		chrIntervals := s.nameMap[entry.RefName]
		n := len(chrIntervals)
		if n != 0 && entry.Start0 <= chrIntervals[n-1] {
			// Intervals overlap or touch, merge them.
			if entry.End > chrIntervals[n-1] {
				chrIntervals[n-1] = entry.End
			}
			continue
		}
		s.nameMap[entry.RefName] = append(chrIntervals, entry.Start0, entry.End)
	}
	return s, nil
}

// NewPositionSet loads the intervals from a BED-like stream.  Only the first
// three columns are used.
func NewPositionSet(reader io.Reader, opts NewPositionSetOpts) (*PositionSet, error) {
	scanner := bufio.NewScanner(reader)
	var (
		tokens  [3][]byte
		entries []Entry
		lineIdx int
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if len(curLine) != 0 && curLine[0] == '#' {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		if nToken == 1 || (nToken == 2 && !opts.OneBasedInput) {
			return nil, fmt.Errorf("interval.NewPositionSet: line %d has fewer tokens than expected", lineIdx)
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.NewPositionSet: line %d: %v", lineIdx, err)
		}
		end := start
		if nToken == 3 {
			if end, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
				return nil, fmt.Errorf("interval.NewPositionSet: line %d: %v", lineIdx, err)
			}
		} else if !opts.OneBasedInput {
			end = start + 1
		}
		if opts.OneBasedInput {
			start--
		}
		if start < 0 {
			return nil, fmt.Errorf("interval.NewPositionSet: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		if (end < start) || (end >= PosTypeMax) {
			return nil, fmt.Errorf("interval.NewPositionSet: invalid coordinate pair on line %d", lineIdx)
		}
		entries = append(entries, Entry{
			// Must copy; tokens[0] refers to the scanner's buffer.
			RefName: string(tokens[0]),
			Start0:  PosType(start),
			End:     PosType(end),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	s, err := NewPositionSetFromEntries(entries)
	if err != nil {
		return nil, err
	}
	log.Printf("interval.NewPositionSet: %d position(s) loaded", s.NBase())
	return s, nil
}

// NewPositionSetFromPath is a wrapper for NewPositionSet that takes a path
// instead of an io.Reader.  Gzipped input is detected from the file
// extension.
func NewPositionSetFromPath(path string, opts NewPositionSetOpts) (s *PositionSet, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewPositionSet(reader, opts)
}
