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

package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/shenwei356/bio/seq"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/blast"
)

//                      123456789012345678
const testContig = "ACTAGACGACGTACGCGT"

func testContigs() map[string][]byte {
	return map[string][]byte{"contig1": []byte(testContig)}
}

func hit(contig string, start, end int) blast.Hit {
	return blast.Hit{Isolate: "A", Query: "Q1", Subject: contig, Identity: 100, Coverage: 100, Start: start, End: end}
}

func TestSliceForward(t *testing.T) {
	o := Slice(testContigs(), hit("contig1", 3, 8))
	if o.Skipped() {
		t.Errorf("unexpected skip: %s", o.Skip)
		return
	}
	if expected := testContig[2:8]; string(o.Seq) != expected {
		t.Errorf("expected %s, got %s", expected, o.Seq)
	}
	if o.Header != "A_contig1_3_8" {
		t.Errorf("unexpected header: %s", o.Header)
	}
}

func TestSliceReverse(t *testing.T) {
	// start > end denotes a reverse-strand hit
	o := Slice(testContigs(), hit("contig1", 8, 3))
	if o.Skipped() {
		t.Errorf("unexpected skip: %s", o.Skip)
		return
	}

	forward := testContig[2:8]
	s, err := seq.NewSeq(seq.DNAredundant, []byte(forward))
	if err != nil {
		t.Error(err)
		return
	}
	s.RevComInplace()
	if !bytes.Equal(o.Seq, s.Seq) {
		t.Errorf("expected %s, got %s", s.Seq, o.Seq)
	}

	// reverse-complementing twice returns the original slice
	s2, _ := seq.NewSeq(seq.DNAredundant, o.Seq)
	s2.RevComInplace()
	if string(s2.Seq) != forward {
		t.Errorf("expected %s after double revcomp, got %s", forward, s2.Seq)
	}
}

func TestSliceSkips(t *testing.T) {
	contigs := testContigs()

	if o := Slice(contigs, hit("nope", 3, 8)); o.Skip != SkipContigNotFound {
		t.Errorf("expected %q, got %q", SkipContigNotFound, o.Skip)
	}
	if o := Slice(contigs, hit("contig1", 100, 120)); o.Skip != SkipOutOfRange {
		t.Errorf("expected %q, got %q", SkipOutOfRange, o.Skip)
	}
	// the end is clamped to the contig length
	if o := Slice(contigs, hit("contig1", 15, 100)); o.Skipped() || string(o.Seq) != testContig[14:] {
		t.Errorf("expected %s, got %s (skip: %s)", testContig[14:], o.Seq, o.Skip)
	}
}

func TestLoadContigs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.fa")
	content := ">contig1 assembled\nACTAGACGAC\nGTACGCGT\n>contig2\nGGGG\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	contigs, err := LoadContigs(file)
	if err != nil {
		t.Error(err)
		return
	}
	if len(contigs) != 2 {
		t.Errorf("expected 2 contigs, got %d", len(contigs))
		return
	}
	if string(contigs["contig1"]) != testContig {
		t.Errorf("expected %s, got %s", testContig, contigs["contig1"])
	}
	if string(contigs["contig2"]) != "GGGG" {
		t.Errorf("expected GGGG, got %s", contigs["contig2"])
	}
}
