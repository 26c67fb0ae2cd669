// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// GenerateIndex generates an index (*.fai) from FASTA.  The index can be later
// passed to NewIndexed() to random-access the FASTA file quickly.
//
// The index format is defined by "samtool faidx"
// (http://www.htslib.org/doc/faidx.html).
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		tsvOut  = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		cur     indexEntry
		seqName string
		cumByte int64
		eof     bool
	)

	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		tsvOut.WriteString(seqName)
		tsvOut.WriteInt64(int64(cur.length))
		tsvOut.WriteInt64(int64(cur.offset))
		tsvOut.WriteInt64(int64(cur.lineBase))
		tsvOut.WriteInt64(int64(cur.lineWidth))
		setErr(tsvOut.EndLine())
	}
	for !eof && err == nil {
		fullLine, e := r.ReadBytes('\n')
		if e == io.EOF { // Process fullLine, then exit the loop
			eof = true
		} else if e != nil {
			setErr(e)
		}
		cumByte += int64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if cur.lineWidth != 0 {
				if seqName == "" {
					setErr(errors.New("malformed FASTA file"))
				}
				flush()
			}
			seqName = seqNameFromHeader(string(line[1:]))
			cur = indexEntry{offset: uint64(cumByte)}
			continue
		}
		if cur.lineWidth == 0 {
			cur.lineWidth = uint64(len(fullLine))
			cur.lineBase = uint64(len(line))
		}
		cur.length += uint64(len(line))
	}
	if cumByte == 0 {
		return errors.New("empty FASTA file")
	}
	flush()
	setErr(tsvOut.Flush())
	return
}
