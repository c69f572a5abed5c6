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

package blast

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/registry"
)

const tblastnOutput = `Q1	contig1	100.000	100	120	260
Q1	contig1	95.500	92	800	660
Q1	contig2	60.000	100	5	145
`

func TestParseHits(t *testing.T) {
	hits, err := ParseHits(strings.NewReader(tblastnOutput), "A")
	if err != nil {
		t.Error(err)
		return
	}
	if len(hits) != 3 {
		t.Errorf("expected 3 hits, got %d", len(hits))
		return
	}

	h := hits[1]
	if h.Isolate != "A" || h.Query != "Q1" || h.Subject != "contig1" {
		t.Errorf("unexpected hit: %+v", h)
	}
	if h.Identity != 95.5 || h.Coverage != 92 {
		t.Errorf("unexpected identity/coverage: %v/%v", h.Identity, h.Coverage)
	}
	if h.Start != 800 || h.End != 660 { // reverse strand, start > end
		t.Errorf("unexpected coordinates: %d-%d", h.Start, h.End)
	}
}

func TestParseHitsMalformed(t *testing.T) {
	if _, err := ParseHits(strings.NewReader("Q1\tcontig1\t100.0\n"), "A"); err == nil {
		t.Error("expected an error for a truncated line")
	}
	if _, err := ParseHits(strings.NewReader("Q1\tcontig1\tabc\t100\t1\t9\n"), "A"); err == nil {
		t.Error("expected an error for a non-numeric pident")
	}
}

func TestFilter(t *testing.T) {
	hits, err := ParseHits(strings.NewReader(tblastnOutput), "A")
	if err != nil {
		t.Fatal(err)
	}

	kept := Filter(hits, 90, 90)
	if len(kept) != 2 {
		t.Errorf("expected 2 hits at 90/90, got %d", len(kept))
	}
	kept = Filter(hits, 90, 100)
	if len(kept) != 1 {
		t.Errorf("expected 1 hit at 90/100, got %d", len(kept))
	}
	kept = Filter(hits, 0, 0)
	if len(kept) != 3 {
		t.Errorf("expected 3 hits at 0/0, got %d", len(kept))
	}
}

// raising either threshold never increases the number of retained hits
func TestFilterMonotonicity(t *testing.T) {
	hits, err := ParseHits(strings.NewReader(tblastnOutput), "A")
	if err != nil {
		t.Fatal(err)
	}

	thresholds := []float64{0, 50, 60, 90, 92, 95.5, 99, 100}
	for _, cov := range thresholds {
		prev := len(hits) + 1
		for _, ident := range thresholds {
			n := len(Filter(hits, ident, cov))
			if n > prev {
				t.Errorf("retained hits increased from %d to %d when raising identity to %v at coverage %v", prev, n, ident, cov)
			}
			prev = n
		}
	}
}

func TestCountOverlaps(t *testing.T) {
	hits := []Hit{
		{Isolate: "A", Subject: "c1", Start: 100, End: 200},
		{Isolate: "A", Subject: "c1", Start: 300, End: 400},
		{Isolate: "A", Subject: "c1", Start: 390, End: 350}, // overlaps the 2nd, reverse strand
		{Isolate: "A", Subject: "c2", Start: 100, End: 200}, // different contig
		{Isolate: "B", Subject: "c1", Start: 100, End: 200}, // different isolate
	}
	if n := CountOverlaps(hits); n != 1 {
		t.Errorf("expected 1 overlap, got %d", n)
	}
}

// fakeRunner records invocations and fabricates database sidecar files.
type fakeRunner struct {
	mkdbCalls    []string
	tblastnCalls []string
}

func (r *fakeRunner) MakeDB(ctx context.Context, contigFile string, dbPath string) error {
	r.mkdbCalls = append(r.mkdbCalls, dbPath)
	for _, ext := range dbExts {
		if err := os.WriteFile(dbPath+ext, []byte{}, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRunner) TBlastN(ctx context.Context, queryFile string, dbPath string, outFile string, coverage float64) error {
	r.tblastnCalls = append(r.tblastnCalls, dbPath)
	return os.WriteFile(outFile, []byte{}, 0644)
}

func TestBuildDatabases(t *testing.T) {
	dir := t.TempDir()
	dbDir := filepath.Join(dir, "blast_dbs")

	contigA := filepath.Join(dir, "a.fa")
	if err := os.WriteFile(contigA, []byte(">c1\nACGT\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reg := registry.Registry{
		{ID: "A", Path: contigA},
		{ID: "B", Path: filepath.Join(dir, "missing.fa")},
	}

	runner := &fakeRunner{}
	ctx := context.Background()

	stats, err := BuildDatabases(ctx, runner, reg, dbDir, false)
	if err != nil {
		t.Error(err)
		return
	}
	if stats.Built != 1 || stats.Missing != 1 || stats.Skipped != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !DBExists(dbDir, "A") {
		t.Error("expected a complete database for A")
	}
	if DBExists(dbDir, "B") {
		t.Error("expected no database for B")
	}

	// a second pass without force is a no-op for A
	stats, err = BuildDatabases(ctx, runner, reg, dbDir, false)
	if err != nil {
		t.Error(err)
		return
	}
	if stats.Skipped != 1 || stats.Built != 0 {
		t.Errorf("unexpected stats on rebuild: %+v", stats)
	}
	if len(runner.mkdbCalls) != 1 {
		t.Errorf("expected 1 makeblastdb invocation, got %d", len(runner.mkdbCalls))
	}

	// force rebuilds
	stats, err = BuildDatabases(ctx, runner, reg, dbDir, true)
	if err != nil {
		t.Error(err)
		return
	}
	if stats.Built != 1 {
		t.Errorf("unexpected stats with force: %+v", stats)
	}
	if len(runner.mkdbCalls) != 2 {
		t.Errorf("expected 2 makeblastdb invocations, got %d", len(runner.mkdbCalls))
	}
}

func TestWriteCSV(t *testing.T) {
	hits := []Hit{
		{Isolate: "A", Query: "Q1", Subject: "contig1", Identity: 100, Coverage: 100, Start: 120, End: 260},
		{Isolate: "B", Query: "Q1", Subject: "contig9", Identity: 95.5, Coverage: 92, Start: 800, End: 660},
	}

	var buf strings.Builder
	if err := WriteCSV(&buf, hits); err != nil {
		t.Error(err)
		return
	}

	expected := "Query,Subject,Identity,Coverage,Start,End\n" +
		"Q1,contig1,100,100,120,260\n" +
		"Q1,contig9,95.5,92,800,660\n"
	if buf.String() != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, buf.String())
	}
}
