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
package rnaedit

import (
	"encoding/binary"
	"math"

	"github.com/grailbio/rnaedit/pileup"
	"github.com/pkg/errors"
)

// Intermediate per-worker files store PositionRecords in recordio format,
// lightly compressed with zstd.  They are concatenated in sub-interval order
// once every worker has finished.

const (
	rowFixedBytes = 2 + 4 + 1 + 1 + 1 // region length, pos, ref, strand, genomic flag
	profileBytes  = 4 + 9 + 16 + 2 + 9
)

// cutAndAdvance returns s[offset:offset+pieceLen], and increments offset by
// pieceLen.
func cutAndAdvance(offset *int, s []byte, pieceLen int) []byte {
	tmpSlice := s[(*offset):]
	*offset += pieceLen
	return tmpSlice[:pieceLen]
}

func putRatio(dst []byte, r Ratio) {
	dst = dst[:9]
	if r.Valid {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	binary.LittleEndian.PutUint64(dst[1:9], math.Float64bits(r.V))
}

func getRatio(src []byte) Ratio {
	src = src[:9]
	return Ratio{Valid: src[0] != 0, V: math.Float64frombits(binary.LittleEndian.Uint64(src[1:9]))}
}

func putProfile(dst []byte, p *Profile) {
	dst = dst[:profileBytes]
	binary.LittleEndian.PutUint32(dst[0:4], p.Coverage)
	putRatio(dst[4:13], p.MeanQuality)
	binary.LittleEndian.PutUint32(dst[13:17], p.BaseCounts[pileup.BaseA])
	binary.LittleEndian.PutUint32(dst[17:21], p.BaseCounts[pileup.BaseC])
	binary.LittleEndian.PutUint32(dst[21:25], p.BaseCounts[pileup.BaseG])
	binary.LittleEndian.PutUint32(dst[25:29], p.BaseCounts[pileup.BaseT])
	binary.LittleEndian.PutUint16(dst[29:31], uint16(p.Substitutions))
	putRatio(dst[31:40], p.Frequency)
}

func getProfile(src []byte, p *Profile) {
	src = src[:profileBytes]
	p.Coverage = binary.LittleEndian.Uint32(src[0:4])
	p.MeanQuality = getRatio(src[4:13])
	p.BaseCounts[pileup.BaseA] = binary.LittleEndian.Uint32(src[13:17])
	p.BaseCounts[pileup.BaseC] = binary.LittleEndian.Uint32(src[17:21])
	p.BaseCounts[pileup.BaseG] = binary.LittleEndian.Uint32(src[21:25])
	p.BaseCounts[pileup.BaseT] = binary.LittleEndian.Uint32(src[25:29])
	p.Substitutions = SubstitutionSet(binary.LittleEndian.Uint16(src[29:31]))
	p.Frequency = getRatio(src[31:40])
}

// Serialized format:
//   [0..2): region length n
//   [2..2+n): region
//   then pos (4 bytes), ref, strand, genomic flag (1 byte each)
//   then the primary Profile (40 bytes)
//   then the genomic Profile (40 bytes) if the flag is set
func marshalRecord(scratch []byte, p interface{}) ([]byte, error) {
	rec := p.(*PositionRecord)
	if len(rec.Region) > math.MaxUint16 {
		return nil, errors.Errorf("marshalRecord: region name too long (%d bytes)", len(rec.Region))
	}
	bytesReq := rowFixedBytes + len(rec.Region) + profileBytes
	if rec.Genomic != nil {
		bytesReq += profileBytes
	}
	t := scratch
	if len(t) < bytesReq {
		t = make([]byte, bytesReq)
	}
	t = t[:bytesReq]

	offset := 0
	binary.LittleEndian.PutUint16(cutAndAdvance(&offset, t, 2), uint16(len(rec.Region)))
	copy(cutAndAdvance(&offset, t, len(rec.Region)), rec.Region)
	tFixed := cutAndAdvance(&offset, t, 7)
	binary.LittleEndian.PutUint32(tFixed[0:4], uint32(rec.Pos))
	tFixed[4] = rec.Ref
	tFixed[5] = byte(rec.Strand)
	if rec.Genomic != nil {
		tFixed[6] = 1
	} else {
		tFixed[6] = 0
	}
	putProfile(cutAndAdvance(&offset, t, profileBytes), &rec.Profile)
	if rec.Genomic != nil {
		putProfile(cutAndAdvance(&offset, t, profileBytes), rec.Genomic)
	}
	return t, nil
}

func unmarshalRecord(in []byte) (out interface{}, err error) {
	if len(in) < rowFixedBytes+profileBytes {
		return nil, errors.Errorf("unmarshalRecord: truncated record (%d bytes)", len(in))
	}
	offset := 0
	regionLen := int(binary.LittleEndian.Uint16(cutAndAdvance(&offset, in, 2)))
	if len(in) < rowFixedBytes+regionLen+profileBytes {
		return nil, errors.Errorf("unmarshalRecord: truncated record (%d bytes)", len(in))
	}
	rec := &PositionRecord{
		Region: string(cutAndAdvance(&offset, in, regionLen)),
	}
	inFixed := cutAndAdvance(&offset, in, 7)
	rec.Pos = PosType(binary.LittleEndian.Uint32(inFixed[0:4]))
	rec.Ref = inFixed[4]
	rec.Strand = pileup.StrandType(inFixed[5])
	hasGenomic := inFixed[6] != 0
	getProfile(cutAndAdvance(&offset, in, profileBytes), &rec.Profile)
	if hasGenomic {
		if len(in) < offset+profileBytes {
			return nil, errors.Errorf("unmarshalRecord: truncated genomic profile")
		}
		rec.Genomic = &Profile{}
		getProfile(cutAndAdvance(&offset, in, profileBytes), rec.Genomic)
	}
	return rec, nil
}
