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

package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTmp(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "contigs.tab")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestLoad(t *testing.T) {
	file := writeTmp(t, "A\ta.fa\nB\tb.fa\n\nC\tc.fa\n")

	reg, err := Load(file)
	if err != nil {
		t.Error(err)
		return
	}
	if len(reg) != 3 {
		t.Errorf("expected 3 genomes, got %d", len(reg))
		return
	}
	for i, id := range []string{"A", "B", "C"} {
		if reg[i].ID != id {
			t.Errorf("genome %d: expected ID %s, got %s", i, id, reg[i].ID)
		}
	}
	if reg[1].Path != "b.fa" {
		t.Errorf("expected path b.fa, got %s", reg[1].Path)
	}
}

func TestLoadMalformedLine(t *testing.T) {
	tests := []string{
		"A\ta.fa\nB b.fa\n",       // space instead of tab
		"A\ta.fa\nB\tb.fa\tx\n",   // three fields
		"A\ta.fa\n\tb.fa\n",       // empty ID
		"A\ta.fa\nA\tother.fa\n",  // duplicated ID
	}
	for _, content := range tests {
		if _, err := Load(writeTmp(t, content)); err == nil {
			t.Errorf("expected a parse error for %q", content)
		}
	}
}

func TestChunks(t *testing.T) {
	reg := make(Registry, 0, 5)
	for i := 0; i < 5; i++ {
		reg = append(reg, Genome{ID: fmt.Sprintf("g%d", i), Path: fmt.Sprintf("g%d.fa", i)})
	}

	chunks := reg.Chunks(2)
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
		return
	}
	for i, n := range []int{2, 2, 1} {
		if len(chunks[i]) != n {
			t.Errorf("chunk %d: expected %d genomes, got %d", i, n, len(chunks[i]))
		}
	}

	// a disjoint cover: concatenating the chunks reproduces the registry
	var joined Registry
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	if len(joined) != len(reg) {
		t.Errorf("expected %d genomes after concatenating, got %d", len(reg), len(joined))
		return
	}
	for i := range reg {
		if joined[i] != reg[i] {
			t.Errorf("genome %d: expected %v, got %v", i, reg[i], joined[i])
		}
	}
}

func TestChunkRoundTrip(t *testing.T) {
	content := "A\ta.fa\nB\tb.fa\nC\tc.fa\nD\td.fa\nE\te.fa\n"
	reg, err := Load(writeTmp(t, content))
	if err != nil {
		t.Error(err)
		return
	}

	dir := t.TempDir()
	var buf strings.Builder
	for i, chunk := range reg.Chunks(2) {
		file := filepath.Join(dir, fmt.Sprintf("contigs_chunk_%03d.tab", i))
		if err := chunk.WriteFile(file); err != nil {
			t.Error(err)
			return
		}
		data, err := os.ReadFile(file)
		if err != nil {
			t.Error(err)
			return
		}
		buf.Write(data)
	}

	if buf.String() != content {
		t.Errorf("expected:\n%s\ngot:\n%s", content, buf.String())
	}
}

func TestPathOf(t *testing.T) {
	reg := Registry{{ID: "A", Path: "a.fa"}, {ID: "B", Path: "b.fa"}}
	if p, ok := reg.PathOf("B"); !ok || p != "b.fa" {
		t.Errorf("expected b.fa, got %s (%v)", p, ok)
	}
	if _, ok := reg.PathOf("Z"); ok {
		t.Error("expected a miss for unknown isolate")
	}
}
