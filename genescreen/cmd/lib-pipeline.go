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

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/blast"
	"github.com/MDU-PHL/genescreen/genescreen/cmd/cluster"
	"github.com/MDU-PHL/genescreen/genescreen/cmd/extract"
	"github.com/MDU-PHL/genescreen/genescreen/cmd/registry"
)

// per-query output files
const (
	fileQueryDir       = "blast_results"
	fileFilteredHits   = "filtered_tblastn_results.csv"
	fileHitSeqs        = "gene_hit_sequences.fasta"
	fileClusteredNt    = "clustered_nucleotide_sequences.fasta"
	fileClusteredProt  = "clustered_protein_sequences.fasta"
	fileClusteredProt2 = "clustered_protein_sequences_clustered.fasta"
	fileFinalResults   = "final_clustered_results.csv"
	fileSummary        = "summary_statistics.txt"
	fileIdentHist      = "identity_hist.png"
)

type pipelineConfig struct {
	runner blast.Runner
	engine cluster.Engine

	dbDir  string
	outDir string

	minIdent float64
	minCov   float64

	plot    bool
	verbose bool
}

// screenQuery runs the search, extraction, clustering, translation and
// aggregation stages for one query across the whole registry. Stages run
// strictly in order. Per-genome failures are logged and skipped; only
// context cancellation or an unusable output directory aborts the query.
func screenQuery(ctx context.Context, cfg *pipelineConfig, reg registry.Registry, queryID string, querySeq []byte) error {
	queryDir := filepath.Join(cfg.outDir, queryID)
	rawDir := filepath.Join(queryDir, fileQueryDir)
	if err := os.MkdirAll(rawDir, 0777); err != nil {
		return errors.Wrap(err, rawDir)
	}

	// the query sequence, written out for tblastn and for traceability
	queryFile := filepath.Join(queryDir, queryID+".fa")
	if err := cluster.WriteFasta(queryFile, []cluster.Record{{ID: queryID, Seq: querySeq}}); err != nil {
		return err
	}

	// ------------------------------------------------------------------
	// homology search across all genomes with a database

	hits := make([]blast.Hit, 0, 128)
	var searched int
	for _, g := range reg {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !blast.DBExists(cfg.dbDir, g.ID) {
			continue
		}
		searched++

		rawFile := filepath.Join(rawDir, fmt.Sprintf("%s_%s_tblastn_results.txt", g.ID, queryID))
		if err := cfg.runner.TBlastN(ctx, queryFile, blast.DBPath(cfg.dbDir, g.ID), rawFile, cfg.minCov); err != nil {
			log.Errorf("tblastn failed for %s against %s: %s", queryID, g.ID, err)
			continue
		}

		ghits, err := blast.ParseHitsFile(rawFile, g.ID)
		if err != nil {
			log.Errorf("failed to parse tblastn output for %s: %s", g.ID, err)
			continue
		}

		// the engine-level coverage pre-filter is re-validated in process
		hits = append(hits, blast.Filter(ghits, cfg.minIdent, cfg.minCov)...)
	}

	if cfg.verbose {
		log.Infof("[%s] %d genomes searched, %d hits passed %.1f%% identity and %.1f%% coverage",
			queryID, searched, len(hits), cfg.minIdent, cfg.minCov)
	}

	summary := cluster.Summary{
		Query:         queryID,
		TotalScreened: len(reg),
	}

	if len(hits) == 0 {
		log.Warningf("[%s] no hits passed filtering, skipping extraction", queryID)
		return writeSummaryFile(filepath.Join(queryDir, fileSummary), summary)
	}

	if n := blast.CountOverlaps(hits); n > 0 {
		log.Warningf("[%s] %d hits overlap an earlier hit on the same contig", queryID, n)
	}

	// checkpoint between search and extraction
	if err := writeHitsCSV(filepath.Join(queryDir, fileFilteredHits), hits); err != nil {
		return err
	}

	// ------------------------------------------------------------------
	// extraction, per isolate, contig files parsed once

	byIsolate := make(map[string][]blast.Hit, len(reg))
	for _, h := range hits {
		byIsolate[h.Isolate] = append(byIsolate[h.Isolate], h)
	}

	extracted := make([]cluster.Record, 0, len(hits))
	positives := make(map[string]interface{}, len(byIsolate))
	skips := make(map[extract.SkipReason]int, 4)

	for _, g := range reg {
		ghits := byIsolate[g.ID]
		if len(ghits) == 0 {
			continue
		}

		contigs, err := extract.LoadContigs(g.Path)
		if err != nil {
			log.Warningf("[%s] failed to load contig file of %s: %s", queryID, g.ID, err)
			continue
		}

		for _, h := range ghits {
			o := extract.Slice(contigs, h)
			if o.Skipped() {
				skips[o.Skip]++
				continue
			}
			extracted = append(extracted, cluster.Record{ID: o.Header, Seq: o.Seq})
			positives[g.ID] = struct{}{}
		}
	}

	for reason, n := range skips {
		log.Warningf("[%s] %d hits skipped: %s", queryID, n, reason)
	}

	summary.Positive = len(positives)
	idents := make([]float64, len(hits))
	covs := make([]float64, len(hits))
	for i, h := range hits {
		idents[i] = h.Identity
		covs[i] = h.Coverage
	}
	summary.HitStats(idents, covs)

	if len(extracted) == 0 {
		log.Warningf("[%s] no sequences extracted", queryID)
		return writeSummaryFile(filepath.Join(queryDir, fileSummary), summary)
	}

	hitSeqsFile := filepath.Join(queryDir, fileHitSeqs)
	if err := cluster.WriteFasta(hitSeqsFile, extracted); err != nil {
		return err
	}

	// ------------------------------------------------------------------
	// clustering and translation, the order is fixed:
	// nucleotide clusters -> translation -> protein clusters

	ntRepFile := filepath.Join(queryDir, fileClusteredNt)
	if err := cfg.engine.Cluster(ctx, hitSeqsFile, ntRepFile); err != nil {
		return errors.Wrapf(err, "[%s] nucleotide clustering", queryID)
	}

	ntAssign, err := cluster.NewAssignmentFromFasta(ntRepFile)
	if err != nil {
		return err
	}

	ntReps, err := cluster.ReadFasta(ntRepFile)
	if err != nil {
		return err
	}
	protRecords := make([]cluster.Record, 0, len(ntReps))
	for _, r := range ntReps {
		aa, err := cluster.Translate(r.Seq)
		if err != nil {
			log.Warningf("[%s] failed to translate %s: %s", queryID, r.ID, err)
			continue
		}
		protRecords = append(protRecords, cluster.Record{ID: r.ID, Seq: aa})
	}

	protFile := filepath.Join(queryDir, fileClusteredProt)
	if err := cluster.WriteFasta(protFile, protRecords); err != nil {
		return err
	}

	protRepFile := filepath.Join(queryDir, fileClusteredProt2)
	if err := cfg.engine.Cluster(ctx, protFile, protRepFile); err != nil {
		return errors.Wrapf(err, "[%s] protein clustering", queryID)
	}

	protAssign, err := cluster.NewAssignmentFromFasta(protRepFile)
	if err != nil {
		return err
	}

	// ------------------------------------------------------------------
	// aggregation

	rows := cluster.Aggregate(extracted, queryID, ntAssign, protAssign)
	if err := writeRowsCSV(filepath.Join(queryDir, fileFinalResults), rows); err != nil {
		return err
	}

	// unique counts include aggregation-time allocations
	summary.UniqueNt = ntAssign.Size()
	summary.UniqueProt = protAssign.Size()

	if err := writeSummaryFile(filepath.Join(queryDir, fileSummary), summary); err != nil {
		return err
	}

	if cfg.plot {
		if err := plotIdentityHist(idents, filepath.Join(queryDir, fileIdentHist)); err != nil {
			log.Warningf("[%s] failed to plot identity histogram: %s", queryID, err)
		}
	}

	if cfg.verbose {
		log.Infof("[%s] %d sequences extracted from %d isolates, %d nucleotide and %d protein clusters",
			queryID, len(extracted), summary.Positive, summary.UniqueNt, summary.UniqueProt)
	}
	return nil
}

func writeHitsCSV(file string, hits []blast.Hit) error {
	fh, err := os.Create(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	if err = blast.WriteCSV(fh, hits); err != nil {
		fh.Close()
		return errors.Wrap(err, file)
	}
	return fh.Close()
}

func writeRowsCSV(file string, rows []cluster.Row) error {
	fh, err := os.Create(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	if err = cluster.WriteRows(fh, rows); err != nil {
		fh.Close()
		return errors.Wrap(err, file)
	}
	return fh.Close()
}

func writeSummaryFile(file string, s cluster.Summary) error {
	fh, err := os.Create(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	if err = cluster.WriteSummary(fh, s); err != nil {
		fh.Close()
		return errors.Wrap(err, file)
	}
	return fh.Close()
}

// sanitizeQueryID guards the use of query IDs as directory names.
func sanitizeQueryID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}
