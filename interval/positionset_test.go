package interval

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const bedData = `# comment
chr1	100	110
chr1	105	120
chr1	130	131
chr2	5	7
chr1	50	60
`

func TestNewPositionSet(t *testing.T) {
	tests := []struct {
		data          string
		oneBasedInput bool
		want          map[string][]PosType
	}{
		{
			bedData,
			false,
			map[string][]PosType{
				"chr1": {50, 60, 100, 120, 130, 131},
				"chr2": {5, 7},
			},
		},
		{
			"chr3\t10\nchr3\t11\nchr3\t20\t22\n",
			true,
			map[string][]PosType{
				"chr3": {9, 11, 19, 22},
			},
		},
	}
	for _, tt := range tests {
		s, err := NewPositionSet(strings.NewReader(tt.data), NewPositionSetOpts{OneBasedInput: tt.oneBasedInput})
		assert.NoError(t, err)
		if !reflect.DeepEqual(s.nameMap, tt.want) {
			t.Errorf("Wanted: %v  Got: %v", tt.want, s.nameMap)
		}
	}
}

func TestNewPositionSetErrors(t *testing.T) {
	for _, data := range []string{
		"chr1\n",
		"chr1\t5\n",
		"chr1\tx\t6\n",
		"chr1\t-1\t6\n",
		"chr1\t8\t6\n",
	} {
		_, err := NewPositionSet(strings.NewReader(data), NewPositionSetOpts{})
		expect.True(t, err != nil, "input %q", data)
	}
}

func TestPositionSetQueries(t *testing.T) {
	s, err := NewPositionSet(strings.NewReader(bedData), NewPositionSetOpts{})
	assert.NoError(t, err)
	expect.EQ(t, s.NBase(), 10+20+1+2)

	for _, tt := range []struct {
		chr  string
		pos  PosType
		want bool
	}{
		{"chr1", 49, false},
		{"chr1", 50, true},
		{"chr1", 59, true},
		{"chr1", 60, false},
		{"chr1", 119, true},
		{"chr1", 130, true},
		{"chr1", 131, false},
		{"chr2", 6, true},
		{"chrM", 6, false},
	} {
		expect.EQ(t, s.Contains(tt.chr, tt.pos), tt.want, "%s:%d", tt.chr, tt.pos)
	}
	expect.True(t, s.Intersects("chr1", 0, 51))
	expect.False(t, s.Intersects("chr1", 60, 100))
	expect.True(t, s.Intersects("chr1", 125, 200))

	var nilSet *PositionSet
	expect.False(t, nilSet.Contains("chr1", 50))
}

func TestCursorMatchesContains(t *testing.T) {
	s, err := NewPositionSet(strings.NewReader(bedData), NewPositionSetOpts{})
	assert.NoError(t, err)
	c := s.Cursor("chr1")
	for pos := PosType(0); pos < 200; pos++ {
		expect.EQ(t, c.Contains(pos), s.Contains("chr1", pos), "pos %d", pos)
	}
	// Moving backwards must still give correct answers.
	expect.True(t, c.Contains(55))
	expect.False(t, c.Contains(10))
}

func TestClipEndpoints(t *testing.T) {
	endpoints := []PosType{50, 60, 100, 120, 130, 131}
	tests := []struct {
		start, end PosType
		want       []PosType
	}{
		{0, 40, nil},
		{0, 55, []PosType{50, 55}},
		{55, 110, []PosType{55, 60, 100, 110}},
		{60, 100, nil},
		{0, 1000, endpoints},
		{130, 130, nil},
	}
	for _, tt := range tests {
		got := ClipEndpoints(endpoints, tt.start, tt.end)
		if len(got) != len(tt.want) || (len(got) != 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("ClipEndpoints(%d, %d): wanted %v, got %v", tt.start, tt.end, tt.want, got)
		}
	}
}

func TestNewPositionSetFromPathGzip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(bedData))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	path := filepath.Join(tmpdir, "sites.bed.gz")
	assert.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))

	s, err := NewPositionSetFromPath(path, NewPositionSetOpts{})
	assert.NoError(t, err)
	expect.True(t, reflect.DeepEqual(s.Endpoints("chr2"), []PosType{5, 7}))
}
