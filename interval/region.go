package interval

import (
	"fmt"
	"strconv"
	"strings"
)

// Entry represents a single half-open interval [Start0, End) on one contig.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// Len returns the number of positions in the entry.
func (e Entry) Len() PosType {
	return e.End - e.Start0
}

// String renders the entry as a samtools-style region string.
func (e Entry) String() string {
	return fmt.Sprintf("%s:%d-%d", e.RefName, e.Start0+1, e.End)
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval-end is
// set to PosTypeMax-1 when only the contig ID is provided; callers that know
// the contig length should clip it.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.RefName = region
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.RefName = region[:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end int
	if end, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end < start1 || end >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end)
	return
}

// Partition splits entry into consecutive disjoint sub-intervals of at most
// chunkSize positions.  Concatenating the results in order reproduces entry
// exactly.  A non-positive chunkSize returns entry unsplit.
func Partition(entry Entry, chunkSize PosType) []Entry {
	if entry.End <= entry.Start0 {
		return nil
	}
	if chunkSize <= 0 {
		return []Entry{entry}
	}
	nChunk := int((entry.Len() + chunkSize - 1) / chunkSize)
	parts := make([]Entry, 0, nChunk)
	for start := entry.Start0; ; start += chunkSize {
		end := start + chunkSize
		if end > entry.End || end < start {
			end = entry.End
		}
		parts = append(parts, Entry{RefName: entry.RefName, Start0: start, End: end})
		if end == entry.End {
			break
		}
	}
	return parts
}

// PartitionAll applies Partition to each entry, preserving entry order.
func PartitionAll(entries []Entry, chunkSize PosType) []Entry {
	var parts []Entry
	for _, e := range entries {
		parts = append(parts, Partition(e, chunkSize)...)
	}
	return parts
}
