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

package cluster

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/shenwei356/go-logging"
	"gonum.org/v1/gonum/stat"
)

var log = logging.MustGetLogger("genescreen")

// Row is one line of the final result table: one extracted sequence joined
// with its cluster memberships. Nucleotide and protein clusterings are
// different partitions, two distinct nucleotide clusters translating to the
// same protein cluster (synonymous substitution) is expected.
type Row struct {
	IsolateID   string // extraction header: {isolate}_{contig}_{start}_{end}
	Query       string
	NtCluster   string
	NtSeq       string
	ProtCluster string
	ProtSeq     string
}

// Aggregate recomputes cluster membership for every extracted sequence (not
// just the representatives) against the shared assignments. A sequence the
// engine did not report a representative for is allocated the next label
// from the same assignment.
func Aggregate(extracted []Record, query string, nt *Assignment, prot *Assignment) []Row {
	rows := make([]Row, 0, len(extracted))
	for _, r := range extracted {
		protSeq, err := Translate(r.Seq)
		if err != nil {
			log.Warningf("skipping %s in aggregation: %s", r.ID, err)
			continue
		}

		rows = append(rows, Row{
			IsolateID:   r.ID,
			Query:       query,
			NtCluster:   nt.Label(r.Seq),
			NtSeq:       string(r.Seq),
			ProtCluster: prot.Label(protSeq),
			ProtSeq:     string(protSeq),
		})
	}
	return rows
}

// WriteRows writes the final result table.
func WriteRows(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Isolate_ID,Query Name,Nucleotide Cluster,Nucleotide Sequence,Protein Cluster,Protein Sequence")
	for _, r := range rows {
		fmt.Fprintf(bw, "%s,%s,%s,%s,%s,%s\n",
			r.IsolateID, r.Query, r.NtCluster, r.NtSeq, r.ProtCluster, r.ProtSeq)
	}
	return bw.Flush()
}

// Summary holds the per-query summary counts.
type Summary struct {
	Query         string
	TotalScreened int // genomes in the registry
	Positive      int // distinct isolates with at least one surviving extraction
	UniqueNt      int
	UniqueProt    int

	// identity/coverage distribution over the filtered hits
	IdentMean, IdentStdev float64
	CovMean, CovStdev     float64
	Hits                  int
}

// HitStats fills the identity/coverage distribution fields.
func (s *Summary) HitStats(idents []float64, covs []float64) {
	s.Hits = len(idents)
	if len(idents) == 0 {
		return
	}
	s.IdentMean, s.IdentStdev = stat.MeanStdDev(idents, nil)
	s.CovMean, s.CovStdev = stat.MeanStdDev(covs, nil)
	if math.IsNaN(s.IdentStdev) { // single hit
		s.IdentStdev = 0
		s.CovStdev = 0
	}
}

// WriteSummary writes the summary as plain key: value lines.
func WriteSummary(w io.Writer, s Summary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Query: %s\n", s.Query)
	fmt.Fprintf(bw, "Total Samples Screened: %d\n", s.TotalScreened)
	fmt.Fprintf(bw, "Samples Positive: %d\n", s.Positive)
	fmt.Fprintf(bw, "Unique Nucleotide Sequences: %d\n", s.UniqueNt)
	fmt.Fprintf(bw, "Unique Protein Sequences: %d\n", s.UniqueProt)
	if s.Hits > 0 {
		fmt.Fprintf(bw, "Identity Mean/Stdev: %.2f/%.2f\n", s.IdentMean, s.IdentStdev)
		fmt.Fprintf(bw, "Coverage Mean/Stdev: %.2f/%.2f\n", s.CovMean, s.CovStdev)
	}
	return bw.Flush()
}
