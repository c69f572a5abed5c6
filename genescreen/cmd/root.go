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
	"os"
	"runtime"

	colorable "github.com/mattn/go-colorable"
	"github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
)

// VERSION of genescreen
const VERSION = "0.3.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "genescreen",
	Short: "screen bacterial genome assemblies for gene homologs",
	Long: fmt.Sprintf(`
genescreen v%s: screen bacterial genome assemblies for gene homologs

genescreen searches a collection of assembled genomes for query protein
sequences with TBLASTN, extracts the matching genomic regions, clusters
nucleotide and protein variants at 100%% identity, and reports per-isolate,
per-query result tables with summary counts.

Main commands:
  1. Building a genome registry (optional)
        genescreen mkregistry -I genomes/ -o contigs.tab
  2. Screening
        genescreen screen   -q query.fasta -c contigs.tab -o results/
  3. Screening big collections in parallel chunks
        genescreen parallel -q query.fasta -c contigs.tab -p 20 -s 1000

External tools (must be in $PATH or given via flags):
  makeblastdb, tblastn (BLAST+), cd-hit

`, VERSION),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().IntP("threads", "j", runtime.NumCPU(),
		formatFlagUsage("Number of CPU cores to use."))
	RootCmd.PersistentFlags().BoolP("quiet", "", false,
		formatFlagUsage("Do not print any verbose information. But you can write them to a file with --log."))
	RootCmd.PersistentFlags().StringP("log", "", "",
		formatFlagUsage("Log file."))

	RootCmd.CompletionOptions.HiddenDefaultCmd = true
	RootCmd.SetUsageTemplate(usageTemplate(""))
}

var log *logging.Logger

var logFormat = logging.MustStringFormatter(
	`%{color}[%{level:.4s}]%{color:reset} %{time:2006-01-02 15:04:05} %{message}`,
)

func init() {
	backend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	logging.SetBackend(logging.NewBackendFormatter(backend, logFormat))
	log = logging.MustGetLogger("genescreen")
}

// addLog also writes log messages to a file.
// Remember to close the returned file handler.
func addLog(logfile string, verbose bool) *os.File {
	fh, err := os.Create(logfile)
	checkError(err)

	backend1 := logging.NewLogBackend(fh, "", 0)
	f1 := logging.NewBackendFormatter(backend1, logFormat)
	if verbose {
		backend2 := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
		f2 := logging.NewBackendFormatter(backend2, logFormat)
		logging.SetBackend(f1, f2)
	} else {
		logging.SetBackend(f1)
	}
	return fh
}

func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

func isStdin(file string) bool {
	return file == "-"
}
