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
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		nt, aa string
	}{
		{"ATGAAACGC", "MKR"},
		{"ATGAAAAGA", "MKR"}, // synonymous variant of the above
		{"TTATAA", "L*"},     // internal stops kept
		{"GGTGGCGGAGGG", "GGGG"},
	}
	for _, test := range tests {
		aa, err := Translate([]byte(test.nt))
		if err != nil {
			t.Error(err)
			return
		}
		if string(aa) != test.aa {
			t.Errorf("%s: expected %s, got %s", test.nt, test.aa, aa)
		}
	}

	if _, err := Translate([]byte("AT")); err == nil {
		t.Error("expected an error for a sequence shorter than one codon")
	}
}

func TestExactEngine(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.fasta")
	out := filepath.Join(dir, "out.fasta")

	records := []Record{
		{ID: "a", Seq: []byte("ATGAAACGC")},
		{ID: "b", Seq: []byte("ATGAAAAGA")},
		{ID: "c", Seq: []byte("ATGAAACGC")}, // duplicate of a
		{ID: "d", Seq: []byte("ATGCCC")},
	}
	if err := WriteFasta(in, records); err != nil {
		t.Fatal(err)
	}

	if err := (Exact{}).Cluster(context.Background(), in, out); err != nil {
		t.Error(err)
		return
	}

	reps, err := ReadFasta(out)
	if err != nil {
		t.Error(err)
		return
	}
	if len(reps) != 3 {
		t.Errorf("expected 3 representatives, got %d", len(reps))
		return
	}
	// first-appearance order
	for i, id := range []string{"a", "b", "d"} {
		if reps[i].ID != id {
			t.Errorf("representative %d: expected %s, got %s", i, id, reps[i].ID)
		}
	}
}

func TestAssignmentPartition(t *testing.T) {
	a := NewAssignment()

	seqs := []string{"AAA", "CCC", "AAA", "GGG", "CCC", "AAA"}
	ids := make([]int, len(seqs))
	for i, s := range seqs {
		ids[i] = a.ID([]byte(s))
	}

	// every sequence belongs to exactly one cluster, identical sequences to
	// the same one, in first-appearance order
	expected := []int{1, 2, 1, 3, 2, 1}
	for i := range seqs {
		if ids[i] != expected[i] {
			t.Errorf("sequence %d (%s): expected cluster %d, got %d", i, seqs[i], expected[i], ids[i])
		}
	}
	if a.Size() != 3 {
		t.Errorf("expected 3 clusters, got %d", a.Size())
	}
	if a.Label([]byte("CCC")) != "Cluster_2" {
		t.Errorf("unexpected label: %s", a.Label([]byte("CCC")))
	}
}

// Two isolates carry distinct nucleotide variants translating to the same
// protein: two nucleotide clusters, one shared protein cluster.
func TestAggregateSynonymousVariants(t *testing.T) {
	extracted := []Record{
		{ID: "A_contig1_10_18", Seq: []byte("ATGAAACGC")},
		{ID: "B_contig9_30_22", Seq: []byte("ATGAAAAGA")},
	}

	dir := t.TempDir()
	in := filepath.Join(dir, "gene_hit_sequences.fasta")
	ntOut := filepath.Join(dir, "clustered_nucleotide_sequences.fasta")
	if err := WriteFasta(in, extracted); err != nil {
		t.Fatal(err)
	}
	if err := (Exact{}).Cluster(context.Background(), in, ntOut); err != nil {
		t.Fatal(err)
	}

	nt, err := NewAssignmentFromFasta(ntOut)
	if err != nil {
		t.Error(err)
		return
	}

	// translate the nucleotide representatives, cluster the proteins
	reps, err := ReadFasta(ntOut)
	if err != nil {
		t.Error(err)
		return
	}
	prot := NewAssignment()
	for _, r := range reps {
		aa, err := Translate(r.Seq)
		if err != nil {
			t.Error(err)
			return
		}
		prot.ID(aa)
	}

	if nt.Size() != 2 {
		t.Errorf("expected 2 nucleotide clusters, got %d", nt.Size())
	}
	if prot.Size() != 1 {
		t.Errorf("expected 1 protein cluster, got %d", prot.Size())
	}

	rows := Aggregate(extracted, "Q1", nt, prot)
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
		return
	}
	if rows[0].NtCluster == rows[1].NtCluster {
		t.Error("expected distinct nucleotide clusters")
	}
	if rows[0].ProtCluster != rows[1].ProtCluster {
		t.Errorf("expected a shared protein cluster, got %s and %s", rows[0].ProtCluster, rows[1].ProtCluster)
	}
	if rows[0].ProtSeq != "MKR" || rows[1].ProtSeq != "MKR" {
		t.Errorf("unexpected protein sequences: %s, %s", rows[0].ProtSeq, rows[1].ProtSeq)
	}
}

func TestAggregateUnclusteredSequence(t *testing.T) {
	// a sequence absent from the clustering pass gets the next label from
	// the same assignment, no collision with assigned labels
	nt := NewAssignment()
	nt.ID([]byte("ATGAAACGC"))

	prot := NewAssignment()

	extracted := []Record{
		{ID: "A_c_1_9", Seq: []byte("ATGAAACGC")},
		{ID: "B_c_1_9", Seq: []byte("ATGCCCGGG")},
	}
	rows := Aggregate(extracted, "Q1", nt, prot)
	if rows[0].NtCluster != "Cluster_1" || rows[1].NtCluster != "Cluster_2" {
		t.Errorf("unexpected clusters: %s, %s", rows[0].NtCluster, rows[1].NtCluster)
	}
	if nt.Size() != 2 {
		t.Errorf("expected 2 clusters after aggregation, got %d", nt.Size())
	}
}

func TestWriteSummary(t *testing.T) {
	s := Summary{
		Query:         "Q1",
		TotalScreened: 3,
		Positive:      2,
		UniqueNt:      2,
		UniqueProt:    1,
	}
	s.HitStats([]float64{95, 100}, []float64{90, 100})

	var buf strings.Builder
	if err := WriteSummary(&buf, s); err != nil {
		t.Error(err)
		return
	}

	expected := []string{
		"Query: Q1",
		"Total Samples Screened: 3",
		"Samples Positive: 2",
		"Unique Nucleotide Sequences: 2",
		"Unique Protein Sequences: 1",
		"Identity Mean/Stdev: 97.50/3.54",
		"Coverage Mean/Stdev: 95.00/7.07",
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != len(expected) {
		t.Errorf("expected %d lines, got %d:\n%s", len(expected), len(lines), buf.String())
		return
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("line %d: expected %q, got %q", i, expected[i], lines[i])
		}
	}
}
