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
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/blast"
	"github.com/MDU-PHL/genescreen/genescreen/cmd/cluster"
	"github.com/MDU-PHL/genescreen/genescreen/cmd/registry"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen genome assemblies for query protein sequences",
	Long: `Screen genome assemblies for query protein sequences

The pipeline, per query:
  1. Ensure a BLAST nucleotide database exists for every genome
     (built with makeblastdb, reused unless --force-db).
  2. TBLASTN the query against every database, keep hits with
     identity >= -i/--min-ident and query coverage >= -v/--min-qcov.
     The filtered hit table is written to filtered_tblastn_results.csv.
  3. Extract the hit regions from the contig files, reverse-complementing
     reverse-strand hits (sstart > send).
  4. Cluster the extracted sequences at 100% identity, translate the
     representatives with the bacterial genetic code (table 11), and
     cluster the proteins at 100% identity again.
  5. Write one row per extracted sequence with its nucleotide and protein
     cluster, plus per-query summary counts.

Attention:
  1. The registry (-c/--registry) is a two-column tab-separated file:
     isolate ID and contig FASTA file path, one genome per line.
  2. A missing contig file, a failing external tool call or a query
     without hits is logged and skipped; it never aborts the run.
  3. Query IDs are used as output directory names and must be unique.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ------------------------------------------------------------------

		queryFile := expandPath(getFlagString(cmd, "query"))
		if queryFile == "" {
			checkError(fmt.Errorf("flag -q/--query needed"))
		}
		registryFile := expandPath(getFlagString(cmd, "registry"))
		if registryFile == "" {
			checkError(fmt.Errorf("flag -c/--registry needed"))
		}
		outDir := getFlagString(cmd, "out-dir")
		if outDir == "" {
			checkError(fmt.Errorf("flag -o/--out-dir needed"))
		}

		minIdent := getFlagPercentage(cmd, "min-ident")
		minCov := getFlagPercentage(cmd, "min-qcov")
		dbDir := getFlagString(cmd, "db-dir")
		force := getFlagBool(cmd, "force")
		forceDB := getFlagBool(cmd, "force-db")
		toolTimeout := getFlagDuration(cmd, "tool-timeout")
		plotHist := getFlagBool(cmd, "plot")

		checkFileExists("query file", queryFile)
		checkFileExists("registry file", registryFile)

		var engine cluster.Engine
		switch engineName := getFlagString(cmd, "cluster-engine"); engineName {
		case "cd-hit":
			e := cluster.NewCDHit()
			e.Path = getFlagString(cmd, "cd-hit")
			e.Timeout = toolTimeout
			engine = e
		case "exact":
			engine = cluster.Exact{}
		default:
			checkError(fmt.Errorf("invalid value of flag --cluster-engine: %s (cd-hit or exact)", engineName))
		}

		runner := blast.NewCLIRunner()
		runner.MakeBlastDB = getFlagString(cmd, "makeblastdb")
		runner.TBlastNBin = getFlagString(cmd, "tblastn")
		runner.Timeout = toolTimeout

		// ------------------------------------------------------------------

		reg, err := registry.Load(registryFile)
		checkError(err)
		if len(reg) == 0 {
			checkError(fmt.Errorf("empty registry: %s", registryFile))
		}
		if opt.Verbose {
			log.Infof("genescreen v%s", VERSION)
			log.Infof("%d genomes loaded from %s", len(reg), registryFile)
		}

		makeOutDir(outDir, force, "-o/--out-dir", opt.Verbose)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// ------------------------------------------------------------------
		// database build pass

		fileInfo := filepath.Join(dbDir, FileDBInfo)
		if info, err := readDBInfo(fileInfo); err == nil && opt.Verbose {
			log.Infof("reusing database directory built by genescreen v%s at %s", info.Version, info.BuiltAt.Format(time.RFC3339))
		}

		stats, err := blast.BuildDatabases(ctx, runner, reg, dbDir, forceDB)
		checkError(err)
		if opt.Verbose {
			log.Infof("BLAST databases: %d built, %d reused, %d contig files missing, %d failed",
				stats.Built, stats.Skipped, stats.Missing, stats.Failed)
		}
		checkError(writeDBInfo(fileInfo, &DBInfo{
			Version: VERSION,
			BuiltAt: time.Now(),
			Genomes: len(reg),
			Built:   stats.Built,
			Skipped: stats.Skipped,
			Missing: stats.Missing,
			Failed:  stats.Failed,
		}))

		// ------------------------------------------------------------------
		// one pipeline invocation per query, strictly sequential

		cfg := &pipelineConfig{
			runner:   runner,
			engine:   engine,
			dbDir:    dbDir,
			outDir:   outDir,
			minIdent: minIdent,
			minCov:   minCov,
			plot:     plotHist,
			verbose:  opt.Verbose,
		}

		fastxReader, err := fastx.NewReader(nil, queryFile, "")
		checkError(err)

		seen := make(map[string]interface{}, 8)
		var record *fastx.Record
		var nQueries int
		for {
			record, err = fastxReader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				checkError(err)
			}

			queryID := sanitizeQueryID(string(record.ID))
			if _, ok := seen[queryID]; ok {
				checkError(fmt.Errorf("duplicated query ID: %s", queryID))
			}
			seen[queryID] = struct{}{}
			nQueries++

			querySeq := make([]byte, len(record.Seq.Seq))
			copy(querySeq, record.Seq.Seq)

			if err = screenQuery(ctx, cfg, reg, queryID, querySeq); err != nil {
				if ctx.Err() != nil {
					fastxReader.Close()
					checkError(ctx.Err())
				}
				log.Errorf("query %s abandoned: %s", queryID, err)
			}
		}
		fastxReader.Close()

		if nQueries == 0 {
			checkError(fmt.Errorf("no query sequences found in %s", queryFile))
		}
		if opt.Verbose {
			log.Infof("%d queries screened, results in %s", nQueries, outDir)
		}
	},
}

func init() {
	RootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringP("query", "q", "",
		formatFlagUsage(`Query file (multi-FASTA) with protein sequences.`))
	screenCmd.Flags().StringP("registry", "c", "",
		formatFlagUsage(`Genome registry: tab-separated file with isolate ID in column 1 and contig FASTA file path in column 2.`))
	screenCmd.Flags().StringP("out-dir", "o", "",
		formatFlagUsage(`Output directory, one subdirectory per query.`))

	screenCmd.Flags().Float64P("min-ident", "i", 90.0,
		formatFlagUsage(`Minimum identity of hits (percentage).`))
	screenCmd.Flags().Float64P("min-qcov", "v", 90.0,
		formatFlagUsage(`Minimum query coverage of hits (percentage).`))

	screenCmd.Flags().StringP("db-dir", "d", "blast_dbs",
		formatFlagUsage(`Directory of the BLAST nucleotide databases. Databases are reused unless --force-db is given.`))
	screenCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite an existing output directory.`))
	screenCmd.Flags().BoolP("force-db", "", false,
		formatFlagUsage(`Rebuild BLAST databases even if they exist.`))

	screenCmd.Flags().StringP("cluster-engine", "", "cd-hit",
		formatFlagUsage(`Clustering engine: "cd-hit" (external) or "exact" (in-process).`))
	screenCmd.Flags().StringP("makeblastdb", "", "makeblastdb",
		formatFlagUsage(`Path of the makeblastdb executable.`))
	screenCmd.Flags().StringP("tblastn", "", "tblastn",
		formatFlagUsage(`Path of the tblastn executable.`))
	screenCmd.Flags().StringP("cd-hit", "", "cd-hit",
		formatFlagUsage(`Path of the cd-hit executable.`))
	screenCmd.Flags().DurationP("tool-timeout", "", 0,
		formatFlagUsage(`Timeout per external tool invocation, e.g. 30m (0 for none).`))

	screenCmd.Flags().BoolP("plot", "", false,
		formatFlagUsage(`Plot a histogram of hit identities per query.`))

	screenCmd.SetUsageTemplate(usageTemplate(""))
}
