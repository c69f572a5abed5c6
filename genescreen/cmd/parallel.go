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
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/registry"
	"github.com/spf13/cobra"
)

type chunkState int

const (
	chunkPending chunkState = iota
	chunkRunning
	chunkSucceeded
	chunkFailed
)

func (s chunkState) String() string {
	switch s {
	case chunkPending:
		return "PENDING"
	case chunkRunning:
		return "RUNNING"
	case chunkSucceeded:
		return "SUCCEEDED"
	case chunkFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// chunkResult is reported on the completion channel by the worker that
// processed the chunk.
type chunkResult struct {
	ID      int
	State   chunkState
	Err     error
	Elapsed time.Duration
}

var parallelCmd = &cobra.Command{
	Use:   "parallel",
	Short: "Screen a big genome collection in parallel chunks",
	Long: `Screen a big genome collection in parallel chunks

The registry is split into contiguous chunks of -s/--chunk-size lines, in the
original order: the chunks are a disjoint cover of the registry. Every chunk
is materialized to a temporary registry file (contigs_chunk_NNN.tab) and
screened by an independent "genescreen screen" process with its own output
directory (results_chunk_<id>), so a crashing external tool only loses one
chunk. A bounded pool of -p/--processes workers pulls the chunks.

Attention:
  1. A non-zero exit of a chunk process is logged as a chunk failure, the
     other chunks continue. Partial completion is an accepted outcome: a
     missing results_chunk_<id> directory is the signal that its chunk
     failed. The driver itself exits 0 once all chunks were collected.
  2. The temporary chunk registry files are removed after the run, whether
     the chunks succeeded or not.
  3. Per-chunk result tables are NOT merged into one global table.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

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

		processes := getFlagPositiveInt(cmd, "processes")
		chunkSize := getFlagPositiveInt(cmd, "chunk-size")
		minIdent := getFlagPercentage(cmd, "min-ident")
		minCov := getFlagPercentage(cmd, "min-qcov")
		outPrefix := getFlagString(cmd, "out-prefix")
		dbDir := getFlagString(cmd, "db-dir")
		engineName := getFlagString(cmd, "cluster-engine")
		toolTimeout := getFlagDuration(cmd, "tool-timeout")

		checkFileExists("query file", queryFile)
		checkFileExists("registry file", registryFile)

		exe, err := os.Executable()
		checkError(err)

		reg, err := registry.Load(registryFile)
		checkError(err)
		if len(reg) == 0 {
			checkError(fmt.Errorf("empty registry: %s", registryFile))
		}

		// ------------------------------------------------------------------
		// materialize the chunks

		chunks := reg.Chunks(chunkSize)
		chunkFiles := make([]string, len(chunks))
		for i, chunk := range chunks {
			chunkFiles[i] = fmt.Sprintf("contigs_chunk_%03d.tab", i)
			checkError(chunk.WriteFile(chunkFiles[i]))
		}
		// removed regardless of per-chunk outcome
		defer func() {
			for _, file := range chunkFiles {
				if err := os.Remove(file); err != nil {
					log.Warningf("failed to remove chunk file %s: %s", file, err)
				}
			}
		}()

		if opt.Verbose {
			log.Infof("genescreen v%s", VERSION)
			log.Infof("%d genomes split into %d chunks of at most %d, %d workers",
				len(reg), len(chunks), chunkSize, processes)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// ------------------------------------------------------------------
		// worker pool over the chunks

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if opt.Verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(len(chunks)),
				mpb.PrependDecorators(
					decor.Name("processed chunks: ", decor.WC{W: len("processed chunks: "), C: decor.DindentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.EwmaETA(decor.ET_STYLE_GO, 10),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
		}

		states := make([]chunkState, len(chunks))
		ch := make(chan chunkResult, processes)
		done := make(chan int)
		go func() {
			for r := range ch {
				states[r.ID] = r.State
				if r.State == chunkFailed {
					log.Errorf("chunk %d failed after %s: %s", r.ID, r.Elapsed, r.Err)
				} else if opt.Verbose {
					log.Infof("chunk %d completed in %s", r.ID, r.Elapsed)
				}
				if bar != nil {
					bar.EwmaIncrBy(1, r.Elapsed)
				}
			}
			done <- 1
		}()

		var wg sync.WaitGroup
		tokens := make(chan int, processes)

		for id, chunkFile := range chunkFiles {
			tokens <- 1
			wg.Add(1)
			states[id] = chunkRunning

			go func(id int, chunkFile string) {
				defer func() {
					<-tokens
					wg.Done()
				}()

				chunkStart := time.Now()
				chunkCmd := exec.CommandContext(ctx, exe, "screen",
					"--query", queryFile,
					"--registry", chunkFile,
					"--out-dir", fmt.Sprintf("%s%d", outPrefix, id),
					"--min-ident", strconv.FormatFloat(minIdent, 'f', -1, 64),
					"--min-qcov", strconv.FormatFloat(minCov, 'f', -1, 64),
					"--db-dir", dbDir,
					"--cluster-engine", engineName,
					"--tool-timeout", toolTimeout.String(),
					"--force",
					"--force-db",
					"--quiet",
				)
				var output bytes.Buffer
				chunkCmd.Stdout = &output
				chunkCmd.Stderr = &output

				r := chunkResult{ID: id, State: chunkSucceeded}
				if err := chunkCmd.Run(); err != nil {
					r.State = chunkFailed
					msg := strings.TrimSpace(output.String())
					if msg != "" {
						r.Err = fmt.Errorf("%s: %s", err, lastLines(msg, 5))
					} else {
						r.Err = err
					}
				}
				r.Elapsed = time.Since(chunkStart)
				ch <- r
			}(id, chunkFile)
		}

		wg.Wait()
		close(ch)
		<-done
		if pbs != nil {
			pbs.Wait()
		}

		// ------------------------------------------------------------------

		var failed []string
		for id, state := range states {
			if state != chunkSucceeded {
				failed = append(failed, strconv.Itoa(id))
			}
		}
		if len(failed) > 0 {
			log.Warningf("%d/%d chunks failed: %s", len(failed), len(chunks), strings.Join(failed, ", "))
			log.Warningf("failed chunks have no %s<id> directory", outPrefix)
		} else if opt.Verbose {
			log.Infof("all %d chunks completed", len(chunks))
		}
	},
}

// lastLines returns the last n lines of s, for compact error reports of the
// captured chunk output.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func init() {
	RootCmd.AddCommand(parallelCmd)

	parallelCmd.Flags().StringP("query", "q", "",
		formatFlagUsage(`Query file (multi-FASTA) with protein sequences.`))
	parallelCmd.Flags().StringP("registry", "c", "",
		formatFlagUsage(`Genome registry: tab-separated file with isolate ID in column 1 and contig FASTA file path in column 2.`))
	parallelCmd.Flags().StringP("out-prefix", "o", "results_chunk_",
		formatFlagUsage(`Prefix of the per-chunk output directories.`))

	parallelCmd.Flags().IntP("processes", "p", 20,
		formatFlagUsage(`Number of chunk processes to run in parallel.`))
	parallelCmd.Flags().IntP("chunk-size", "s", 1000,
		formatFlagUsage(`Number of registry lines per chunk.`))

	parallelCmd.Flags().Float64P("min-ident", "i", 90.0,
		formatFlagUsage(`Minimum identity of hits (percentage).`))
	parallelCmd.Flags().Float64P("min-qcov", "v", 90.0,
		formatFlagUsage(`Minimum query coverage of hits (percentage).`))

	parallelCmd.Flags().StringP("db-dir", "d", "blast_dbs",
		formatFlagUsage(`Directory of the BLAST nucleotide databases. Safe to share between chunks: the chunks are disjoint, no two processes build the database of the same isolate.`))
	parallelCmd.Flags().StringP("cluster-engine", "", "cd-hit",
		formatFlagUsage(`Clustering engine: "cd-hit" (external) or "exact" (in-process).`))
	parallelCmd.Flags().DurationP("tool-timeout", "", 0,
		formatFlagUsage(`Timeout per external tool invocation, e.g. 30m (0 for none).`))

	parallelCmd.SetUsageTemplate(usageTemplate(""))
}
