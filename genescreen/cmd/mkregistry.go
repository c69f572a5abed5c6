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
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iafan/cwalk"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts/sortutil"
)

var mkregistryCmd = &cobra.Command{
	Use:   "mkregistry",
	Short: "Build a genome registry from a directory of contig FASTA files",
	Long: `Build a genome registry from a directory of contig FASTA files

The isolate ID of every genome is its file name with the FASTA and
compression extensions trimmed, e.g. genomes/2021-12345.fna.gz -> 2021-12345.
Files are listed recursively and sorted by ID.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		inDir := expandPath(getFlagString(cmd, "in-dir"))
		if inDir == "" {
			checkError(fmt.Errorf("flag -I/--in-dir needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		reFileStr := getFlagString(cmd, "file-regexp")
		reFile, err := regexp.Compile(reFileStr)
		if err != nil {
			checkError(fmt.Errorf("invalid value of flag -r/--file-regexp: %s", err))
		}

		checkFileExists("input directory", inDir)

		files, err := getFileListFromDir(inDir, reFile, opt.NumCPUs)
		checkError(err)
		if len(files) == 0 {
			checkError(fmt.Errorf("no files matching %s found in %s", reFileStr, inDir))
		}

		// isolate ID -> absolute path, IDs must be unique
		registry := make(map[string]string, len(files))
		ids := make([]string, 0, len(files))
		for _, file := range files {
			id, _, _ := filepathTrimExtension(filepath.Base(file))
			if prev, ok := registry[id]; ok {
				checkError(fmt.Errorf("duplicated isolate ID %s: %s and %s", id, prev, file))
			}
			abs, err := filepath.Abs(file)
			checkError(err)
			registry[id] = abs
			ids = append(ids, id)
		}
		sortutil.Strings(ids)

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		for _, id := range ids {
			fmt.Fprintf(outfh, "%s\t%s\n", id, registry[id])
		}

		if opt.Verbose {
			log.Infof("%d genomes written to %s", len(ids), outFile)
		}
	},
}

func getFileListFromDir(path string, pattern *regexp.Regexp, threads int) ([]string, error) {
	files := make([]string, 0, 512)
	ch := make(chan string, threads)
	done := make(chan int)
	go func() {
		for file := range ch {
			files = append(files, file)
		}
		done <- 1
	}()

	cwalk.NumWorkers = threads
	err := cwalk.WalkWithSymlinks(path, func(_path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && pattern.MatchString(info.Name()) {
			ch <- filepath.Join(path, _path)
		}
		return nil
	})
	close(ch)
	<-done
	if err != nil {
		return nil, err
	}

	return files, err
}

var compressExts = []string{".gz", ".xz", ".zst", ".bz2"}

// filepathTrimExtension trims one compression extension and one FASTA
// extension, returning the stem and the trimmed extensions.
func filepathTrimExtension(file string) (string, string, string) {
	var e, e1, e2 string
	f := strings.ToLower(file)
	for _, s := range compressExts {
		e = s
		if strings.HasSuffix(f, e) {
			e2 = e
			file = file[0 : len(file)-len(e)]
			break
		}
	}

	e1 = filepath.Ext(file)
	name := file[0 : len(file)-len(e1)]

	return name, e1, e2
}

func init() {
	RootCmd.AddCommand(mkregistryCmd)

	mkregistryCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing contig FASTA files, listed recursively.`))
	mkregistryCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))
	mkregistryCmd.Flags().StringP("file-regexp", "r", `\.(f|fa|fna|fasta)(\.gz)?$`,
		formatFlagUsage(`Regular expression matching contig FASTA file names.`))

	mkregistryCmd.SetUsageTemplate(usageTemplate(""))
}
