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

// Package blast wraps the BLAST+ suite (makeblastdb, tblastn) and parses its
// tabular output. The search engine is treated as a black box: genescreen
// only builds nucleotide databases, runs translated searches against them and
// re-filters the reported hits.
package blast

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// makeblastdb writes these sidecar files for a nucleotide database.
// A database is complete iff all of them exist.
var dbExts = []string{".nin", ".nsq", ".nhr"}

// OutFmt is the tabular output format requested from tblastn.
// qcovs is the query coverage per subject as reported by BLAST+; it is
// re-validated in process because the engine-level -qcov_hsp_perc pre-filter
// operates on a related but not guaranteed-identical definition.
const OutFmt = "6 qseqid sseqid pident qcovs sstart send"

// Runner abstracts the external BLAST+ invocations, so the stage logic can
// be tested without BLAST+ installed.
type Runner interface {
	// MakeDB builds a nucleotide database from a contig FASTA file.
	MakeDB(ctx context.Context, contigFile string, dbPath string) error

	// TBlastN searches a protein query file against a nucleotide database,
	// writing tabular output (OutFmt) to outFile. coverage is passed as the
	// engine-level -qcov_hsp_perc pre-filter.
	TBlastN(ctx context.Context, queryFile string, dbPath string, outFile string, coverage float64) error
}

// CLIRunner invokes the BLAST+ executables.
type CLIRunner struct {
	MakeBlastDB string        // path of the makeblastdb executable
	TBlastNBin  string        // path of the tblastn executable
	EValue      string        // e-value threshold for tblastn
	Timeout     time.Duration // per-invocation timeout, 0 for none
}

// NewCLIRunner returns a runner using the executables in $PATH.
func NewCLIRunner() *CLIRunner {
	return &CLIRunner{
		MakeBlastDB: "makeblastdb",
		TBlastNBin:  "tblastn",
		EValue:      "1e-5",
	}
}

func (r *CLIRunner) run(ctx context.Context, name string, args ...string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "%s %s", name, strings.Join(args, " "))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %s: %s", name, err, msg)
		}
		return fmt.Errorf("%s failed: %s", name, err)
	}
	return nil
}

func (r *CLIRunner) MakeDB(ctx context.Context, contigFile string, dbPath string) error {
	return r.run(ctx, r.MakeBlastDB, "-in", contigFile, "-dbtype", "nucl", "-out", dbPath)
}

func (r *CLIRunner) TBlastN(ctx context.Context, queryFile string, dbPath string, outFile string, coverage float64) error {
	return r.run(ctx, r.TBlastNBin,
		"-query", queryFile,
		"-db", dbPath,
		"-out", outFile,
		"-evalue", r.EValue,
		"-outfmt", OutFmt,
		"-qcov_hsp_perc", strconv.FormatFloat(coverage, 'f', -1, 64),
	)
}

// DBPath returns the database path of an isolate.
func DBPath(dbDir string, id string) string {
	return filepath.Join(dbDir, id)
}

// DBExists reports whether a complete database exists for an isolate.
func DBExists(dbDir string, id string) bool {
	dbPath := DBPath(dbDir, id)
	for _, ext := range dbExts {
		if _, err := os.Stat(dbPath + ext); err != nil {
			return false
		}
	}
	return true
}

// Hit is one filtered tblastn alignment. Start and End are 1-based inclusive
// positions on the subject contig; Start > End denotes a reverse-strand hit.
type Hit struct {
	Isolate  string // isolate owning the searched database
	Query    string
	Subject  string // subject contig ID
	Identity float64
	Coverage float64
	Start    int
	End      int
}

// ParseHits parses tblastn tabular output (OutFmt) produced by a search
// against the database of one isolate.
func ParseHits(r io.Reader, isolate string) ([]Hit, error) {
	hits := make([]Hit, 0, 8)

	scanner := bufio.NewScanner(r)
	var line string
	var i int
	for scanner.Scan() {
		i++
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || line[0] == '#' {
			continue
		}

		items := strings.Split(line, "\t")
		if len(items) != 6 {
			return nil, fmt.Errorf("malformed tblastn output line %d: expected 6 fields: %q", i, line)
		}

		var h Hit
		var err error
		h.Isolate = isolate
		h.Query = items[0]
		h.Subject = items[1]
		if h.Identity, err = strconv.ParseFloat(items[2], 64); err != nil {
			return nil, fmt.Errorf("malformed tblastn output line %d: pident: %s", i, err)
		}
		if h.Coverage, err = strconv.ParseFloat(items[3], 64); err != nil {
			return nil, fmt.Errorf("malformed tblastn output line %d: qcovs: %s", i, err)
		}
		if h.Start, err = strconv.Atoi(items[4]); err != nil {
			return nil, fmt.Errorf("malformed tblastn output line %d: sstart: %s", i, err)
		}
		if h.End, err = strconv.Atoi(items[5]); err != nil {
			return nil, fmt.Errorf("malformed tblastn output line %d: send: %s", i, err)
		}

		hits = append(hits, h)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// ParseHitsFile parses a tblastn tabular output file.
func ParseHitsFile(file string, isolate string) ([]Hit, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	hits, err := ParseHits(fh, isolate)
	if err != nil {
		fh.Close()
		return nil, errors.Wrap(err, file)
	}
	return hits, fh.Close()
}

// Filter keeps hits with Identity >= minIdent and Coverage >= minCov.
// Both thresholds are percentages in [0, 100]. Raising either threshold
// never increases the number of retained hits.
func Filter(hits []Hit, minIdent float64, minCov float64) []Hit {
	kept := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Identity >= minIdent && h.Coverage >= minCov {
			kept = append(kept, h)
		}
	}
	return kept
}

// WriteCSV writes the filtered hit table, the checkpoint between the search
// and the extraction stages.
func WriteCSV(w io.Writer, hits []Hit) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Query,Subject,Identity,Coverage,Start,End")
	for _, h := range hits {
		fmt.Fprintf(bw, "%s,%s,%s,%s,%d,%d\n",
			h.Query, h.Subject,
			strconv.FormatFloat(h.Identity, 'f', -1, 64),
			strconv.FormatFloat(h.Coverage, 'f', -1, 64),
			h.Start, h.End)
	}
	return bw.Flush()
}
