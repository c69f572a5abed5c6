// Copyright © 2024-2025 MDU-PHL
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package extract slices hit regions out of contig sequences. Positions are
// 1-based inclusive; a hit with Start > End lies on the reverse strand and
// the slice is reverse-complemented.
package extract

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/blast"
)

// SkipReason tells why a hit yielded no sequence.
type SkipReason string

const (
	SkipContigNotFound SkipReason = "subject contig not found in contig file"
	SkipOutOfRange     SkipReason = "hit coordinates out of contig range"
	SkipEmptySlice     SkipReason = "empty slice"
)

// Outcome is the result of extracting one hit: either a sequence or a
// skip with a reason.
type Outcome struct {
	Hit    blast.Hit
	Header string // {isolate}_{contig}_{start}_{end}
	Seq    []byte
	Skip   SkipReason // empty if extracted
}

// Skipped reports whether the hit was dropped.
func (o Outcome) Skipped() bool { return o.Skip != "" }

// LoadContigs parses a contig FASTA file once into an ID-keyed map.
func LoadContigs(file string) (map[string][]byte, error) {
	reader, err := fastx.NewReader(seq.DNAredundant, file, "")
	if err != nil {
		return nil, errors.Wrap(err, file)
	}

	contigs := make(map[string][]byte, 64)
	var record *fastx.Record
	for {
		record, err = reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			reader.Close()
			return nil, errors.Wrap(err, file)
		}

		// the reader reuses its record buffers
		s := make([]byte, len(record.Seq.Seq))
		copy(s, record.Seq.Seq)
		contigs[string(record.ID)] = s
	}
	reader.Close()
	return contigs, nil
}

// Slice extracts the nucleotide span of one hit from the contigs of its
// isolate. Forward strand (Start < End): contig[Start-1:End]. Reverse strand
// (Start > End): reverse complement of contig[End-1:Start]. An absent
// contig, an out-of-range span or an empty slice yields a skip outcome.
func Slice(contigs map[string][]byte, h blast.Hit) Outcome {
	o := Outcome{
		Hit:    h,
		Header: fmt.Sprintf("%s_%s_%d_%d", h.Isolate, h.Subject, h.Start, h.End),
	}

	contig, ok := contigs[h.Subject]
	if !ok {
		o.Skip = SkipContigNotFound
		return o
	}

	start, end := h.Start, h.End
	revcom := start > end
	if revcom {
		start, end = end, start
	}

	if start < 1 || start > len(contig) {
		o.Skip = SkipOutOfRange
		return o
	}
	if end > len(contig) {
		end = len(contig)
	}

	s := make([]byte, end-start+1)
	copy(s, contig[start-1:end])
	if len(s) == 0 {
		o.Skip = SkipEmptySlice
		return o
	}

	if revcom {
		_seq, err := seq.NewSeq(seq.DNAredundant, s)
		if err != nil {
			o.Skip = SkipReason(err.Error())
			return o
		}
		_seq.RevComInplace()
		s = _seq.Seq
	}

	o.Seq = s
	return o
}
