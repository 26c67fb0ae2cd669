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
	"context"
	"io"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/rnaedit/interval"
	"github.com/grailbio/rnaedit/pileup"
	"github.com/pkg/errors"
)

// pendingPos collects the observations at one 0-based position until the
// scan reaches it.
type pendingPos struct {
	pos PosType
	obs []Observation
}

// Compare implements llrb.Comparable.
func (p *pendingPos) Compare(c llrb.Comparable) int {
	return int(p.pos) - int(c.(*pendingPos).pos)
}

// BAMSource is a ReadEvidenceSource backed by an indexed, coordinate-sorted
// BAM file, restricted to one sub-interval.  Reads overlapping the
// sub-interval contribute their aligned bases inside it, wherever the read
// starts.
//
// Reads are consumed in file order.  The aligned bases of each read are
// distributed to per-position entries of an ordered tree; an entry is handed
// out (and recycled) once the scan reaches its position.
type BAMSource struct {
	ctx    context.Context
	part   interval.Entry
	opts   *Opts
	in     file.File
	reader *bam.Reader
	iter   *bam.Iterator
	refID  int

	next *sam.Record // lookahead
	eof  bool
	// floor0 is the smallest 0-based position that may still be queried.
	floor0 PosType

	pending llrb.Tree
	key     pendingPos
	free    []*pendingPos
	obsBuf  []Observation

	nRead int
	nUsed int
}

// BAMOpener returns an EvidenceOpener that opens bamPath (with index
// indexPath, default bamPath+".bai") once per sub-interval.
func BAMOpener(bamPath, indexPath string, opts *Opts) EvidenceOpener {
	return func(ctx context.Context, part interval.Entry) (ReadEvidenceSource, error) {
		return OpenBAMSource(ctx, bamPath, indexPath, part, opts)
	}
}

// OpenBAMSource opens a BAMSource over part.
func OpenBAMSource(ctx context.Context, bamPath, indexPath string, part interval.Entry, opts *Opts) (s *BAMSource, err error) {
	if indexPath == "" {
		indexPath = bamPath + ".bai"
	}
	s = &BAMSource{ctx: ctx, part: part, opts: opts, refID: -1, floor0: part.Start0}
	defer func() {
		if err != nil {
			_ = s.Close()
			s = nil
		}
	}()
	var indexIn file.File
	if indexIn, err = file.Open(ctx, indexPath); err != nil {
		return
	}
	idx, err := bam.ReadIndex(indexIn.Reader(ctx))
	if e := indexIn.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return
	}
	if s.in, err = file.Open(ctx, bamPath); err != nil {
		return
	}
	if s.reader, err = bam.NewReader(s.in.Reader(ctx), 1); err != nil {
		return
	}
	var ref *sam.Reference
	for _, r := range s.reader.Header().Refs() {
		if r.Name() == part.RefName {
			ref = r
			break
		}
	}
	if ref == nil {
		log.Printf("OpenBAMSource: %s not in %s header", part.RefName, bamPath)
		s.eof = true
		return
	}
	s.refID = ref.ID()
	end := int(part.End)
	if end > ref.Len() {
		end = ref.Len()
	}
	chunks, err := idx.Chunks(ref, int(part.Start0), end)
	if err == index.ErrInvalid || err == index.ErrNoReference || (err == nil && len(chunks) == 0) {
		// No reads for this interval.
		s.eof = true
		return s, nil
	}
	if err != nil {
		return
	}
	s.iter, err = bam.NewIterator(s.reader, chunks)
	return
}

// Close releases the underlying file, and logs read totals.
func (s *BAMSource) Close() (err error) {
	log.Printf("BAMSource: %v: %d read(s) seen, %d used", s.part, s.nRead, s.nUsed)
	if s.iter != nil {
		err = s.iter.Close()
		s.iter = nil
	}
	if s.reader != nil {
		if e := s.reader.Close(); e != nil && err == nil {
			err = e
		}
		s.reader = nil
	}
	if s.in != nil {
		if e := s.in.Close(s.ctx); e != nil && err == nil {
			err = e
		}
		s.in = nil
	}
	return
}

// fill consumes every read starting at or before 0-based position upTo0.  On
// return, s.next holds the first unconsumed read unless s.eof is set.
func (s *BAMSource) fill(upTo0 PosType) error {
	for !s.eof {
		if s.next == nil {
			if !s.iter.Next() {
				s.eof = true
				return s.iter.Error()
			}
			rec := s.iter.Record()
			if rec.Ref.ID() != s.refID || PosType(rec.Pos) >= s.part.End {
				s.eof = true
				return nil
			}
			s.next = rec
		}
		if PosType(s.next.Pos) > upTo0 {
			return nil
		}
		if err := s.addRead(s.next); err != nil {
			return err
		}
		s.next = nil
	}
	return nil
}

func (s *BAMSource) readPasses(samr *sam.Record) bool {
	return int(samr.Flags)&s.opts.FlagExclude == 0 &&
		int(samr.MapQ) >= s.opts.Mapq &&
		samr.Seq.Length >= s.opts.MinReadLength
}

// addRead distributes the aligned bases of samr inside the sub-interval,
// at or after floor0, to the pending tree.  The first MinBasePos and last
// MaxBasePos bases of the read are ignored.
func (s *BAMSource) addRead(samr *sam.Record) error {
	s.nRead++
	if !s.readPasses(samr) {
		return nil
	}
	s.nUsed++
	strand := pileup.TranscriptStrand(samr, s.opts.Strandedness)
	seq := samr.Seq.Expand()
	qual := samr.Qual
	readLen := len(seq)
	hasQual := len(qual) == readLen
	minReadPos := s.opts.MinBasePos
	maxReadPos := readLen - s.opts.MaxBasePos
	posInRef := PosType(samr.Pos)
	posInRead := 0
	for _, co := range samr.Cigar {
		cLen := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < cLen; i++ {
				refPos := posInRef + PosType(i)
				readPos := posInRead + i
				if refPos < s.floor0 || refPos >= s.part.End || readPos < minReadPos || readPos >= maxReadPos {
					continue
				}
				o := Observation{Base: pileup.ASCIIToEnumTable[seq[readPos]], Strand: strand}
				if hasQual && qual[readPos] != 0xff {
					o.Qual = qual[readPos]
				}
				s.addObservation(refPos, o)
			}
			posInRef += PosType(cLen)
			posInRead += cLen
		case sam.CigarInsertion, sam.CigarSoftClipped:
			posInRead += cLen
		case sam.CigarDeletion, sam.CigarSkipped:
			posInRef += PosType(cLen)
		case sam.CigarHardClipped, sam.CigarPadded:
			// do nothing
		default:
			return errors.Errorf("BAMSource: unexpected CIGAR code %v in read %s", co, samr.Name)
		}
	}
	return nil
}

func (s *BAMSource) addObservation(pos0 PosType, o Observation) {
	s.key.pos = pos0
	if got := s.pending.Get(&s.key); got != nil {
		p := got.(*pendingPos)
		p.obs = append(p.obs, o)
		return
	}
	var p *pendingPos
	if n := len(s.free); n != 0 {
		p = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		p = &pendingPos{}
	}
	p.pos = pos0
	p.obs = append(p.obs[:0], o)
	s.pending.Insert(p)
}

// advanceFloor discards pending positions before pos0.
func (s *BAMSource) advanceFloor(pos0 PosType) error {
	if pos0 < s.floor0 {
		return errors.Errorf("BAMSource: position %d requested after %d", pos0+1, s.floor0+1)
	}
	s.floor0 = pos0
	for {
		m := s.pending.Min()
		if m == nil || m.(*pendingPos).pos >= pos0 {
			return nil
		}
		s.pending.DeleteMin()
		s.free = append(s.free, m.(*pendingPos))
	}
}

func (s *BAMSource) checkRegion(region string) error {
	if region != s.part.RefName {
		return errors.Errorf("BAMSource: region %s requested from source over %v", region, s.part)
	}
	return nil
}

// ObservationsAt implements ReadEvidenceSource.
func (s *BAMSource) ObservationsAt(region string, pos PosType) ([]Observation, error) {
	if err := s.checkRegion(region); err != nil {
		return nil, err
	}
	pos0 := pos - 1
	if err := s.advanceFloor(pos0); err != nil {
		return nil, err
	}
	if err := s.fill(pos0); err != nil {
		return nil, err
	}
	s.obsBuf = s.obsBuf[:0]
	if m := s.pending.Min(); m != nil && m.(*pendingPos).pos == pos0 {
		p := m.(*pendingPos)
		s.obsBuf = append(s.obsBuf, p.obs...)
		s.pending.DeleteMin()
		s.free = append(s.free, p)
		s.floor0 = pos0 + 1
	}
	return s.obsBuf, nil
}

// NextCovered implements CoverageSkipper.  The returned position is a lower
// bound: the next unconsumed read may turn out to have no aligned bases
// there.
func (s *BAMSource) NextCovered(region string, pos PosType) (PosType, bool, error) {
	if err := s.checkRegion(region); err != nil {
		return 0, false, err
	}
	pos0 := pos - 1
	if err := s.advanceFloor(pos0); err != nil {
		return 0, false, err
	}
	if err := s.fill(pos0); err != nil {
		return 0, false, err
	}
	best := PosType(-1)
	if m := s.pending.Min(); m != nil {
		best = m.(*pendingPos).pos
	}
	if s.next != nil {
		start := PosType(s.next.Pos)
		if start < pos0 {
			start = pos0
		}
		if best < 0 || start < best {
			best = start
		}
	}
	if best < 0 {
		return 0, false, nil
	}
	return best + 1, true, nil
}

// WriteBAMIndex writes a BAI index for the coordinate-sorted BAM file at
// bamPath to indexPath.
func WriteBAMIndex(ctx context.Context, bamPath, indexPath string) (err error) {
	var in file.File
	if in, err = file.Open(ctx, bamPath); err != nil {
		return
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var r *bam.Reader
	if r, err = bam.NewReader(in.Reader(ctx), 1); err != nil {
		return
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var idx bam.Index
	nRec := 0
	for {
		var rec *sam.Record
		if rec, err = r.Read(); err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			return
		}
		if err = idx.Add(rec, r.LastChunk()); err != nil {
			return errors.Wrapf(err, "WriteBAMIndex: %s record %d", bamPath, nRec)
		}
		nRec++
	}
	var out file.File
	if out, err = file.Create(ctx, indexPath); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = bam.WriteIndex(out.Writer(ctx), &idx); err != nil {
		return
	}
	log.Printf("WriteBAMIndex: indexed %d record(s) of %s", nRec, bamPath)
	return
}
