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

// Package registry reads the genome registry file: a tab-separated file with
// the isolate ID in column 1 and the path of the contig FASTA file in
// column 2, one genome per line. The line order is kept, it defines the
// chunk boundaries in parallel runs.
package registry

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
)

// Genome is one line of the registry.
type Genome struct {
	ID   string // isolate ID, unique within one registry file
	Path string // path of the contig FASTA file, not validated at load time
}

// Registry is an ordered list of genomes.
type Registry []Genome

// Load reads a registry file. A line without exactly two tab-separated
// fields, or a duplicated isolate ID, is a fatal parse error: the registry
// format is assumed well-formed by contract.
func Load(file string) (Registry, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}

	reg := make(Registry, 0, 1024)
	seen := make(map[string]interface{}, 1024)

	scanner := bufio.NewScanner(fh)
	var line string
	var i int
	for scanner.Scan() {
		i++
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		items := strings.Split(line, "\t")
		if len(items) != 2 || items[0] == "" || items[1] == "" {
			fh.Close()
			return nil, fmt.Errorf("malformed registry line %d in %s: expected 2 tab-separated fields: %q", i, file, line)
		}
		if _, ok := seen[items[0]]; ok {
			fh.Close()
			return nil, fmt.Errorf("duplicated isolate ID in %s: %s", file, items[0])
		}
		seen[items[0]] = struct{}{}

		reg = append(reg, Genome{ID: items[0], Path: items[1]})
	}
	if err = scanner.Err(); err != nil {
		fh.Close()
		return nil, errors.Wrap(err, file)
	}
	return reg, fh.Close()
}

// Chunks partitions the registry into contiguous blocks of at most size
// genomes, in the original order. The blocks are a disjoint cover of the
// registry: concatenating them reproduces the registry exactly.
func (r Registry) Chunks(size int) []Registry {
	if size <= 0 || len(r) == 0 {
		return nil
	}

	chunks := make([]Registry, 0, (len(r)+size-1)/size)
	for start := 0; start < len(r); start += size {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		chunks = append(chunks, r[start:end])
	}
	return chunks
}

// WriteFile materializes the registry to a tab-separated file.
func (r Registry) WriteFile(file string) error {
	fh, err := os.Create(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	w := bufio.NewWriter(fh)
	for _, g := range r {
		fmt.Fprintf(w, "%s\t%s\n", g.ID, g.Path)
	}
	if err = w.Flush(); err != nil {
		fh.Close()
		return errors.Wrap(err, file)
	}
	return fh.Close()
}

// PathOf returns the contig file path of an isolate.
func (r Registry) PathOf(id string) (string, bool) {
	for _, g := range r {
		if g.ID == id {
			return g.Path, true
		}
	}
	return "", false
}
