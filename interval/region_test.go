package interval

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
)

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region  string
		refName string
		start0  PosType
		end     PosType
		ok      bool
	}{
		{"chr1", "chr1", 0, PosTypeMax - 1, true},
		{"chr1:5", "chr1", 4, 5, true},
		{"chr1:5-5", "chr1", 4, 5, true},
		{"chr2:1,000-2,000", "chr2", 999, 2000, true},
		{"HLA-A*01:01:01:01:1-10", "HLA-A*01:01:01:01", 0, 10, true},
		{"", "", 0, 0, false},
		{":1-5", "", 0, 0, false},
		{"chr1:0-5", "", 0, 0, false},
		{"chr1:6-5", "", 0, 0, false},
		{"chr1:a-5", "", 0, 0, false},
	}
	for _, tt := range tests {
		result, err := ParseRegionString(tt.region)
		if !tt.ok {
			expect.True(t, err != nil, "region %q", tt.region)
			continue
		}
		expect.NoError(t, err, tt.region)
		expect.EQ(t, result, Entry{RefName: tt.refName, Start0: tt.start0, End: tt.end})
	}
}

func TestPartition(t *testing.T) {
	e := Entry{RefName: "chr1", Start0: 10, End: 35}
	assert.Equal(t, Partition(e, 10), []Entry{
		{"chr1", 10, 20},
		{"chr1", 20, 30},
		{"chr1", 30, 35},
	})
	assert.Equal(t, Partition(e, 0), []Entry{e})
	expect.EQ(t, len(Partition(Entry{RefName: "chr1", Start0: 5, End: 5}, 10)), 0)

	// Parts tile the entry exactly, for any chunk size.
	for chunk := PosType(1); chunk < 30; chunk++ {
		parts := Partition(e, chunk)
		next := e.Start0
		for _, p := range parts {
			expect.EQ(t, p.Start0, next)
			expect.True(t, p.Len() > 0 && p.Len() <= chunk)
			next = p.End
		}
		expect.EQ(t, next, e.End)
	}

	all := PartitionAll([]Entry{{"chr2", 0, 3}, {"chr1", 0, 2}}, 2)
	assert.Equal(t, all, []Entry{{"chr2", 0, 2}, {"chr2", 2, 3}, {"chr1", 0, 2}})
	expect.EQ(t, e.String(), "chr1:11-35")
}
