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

package blast

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/shenwei356/go-logging"

	"github.com/MDU-PHL/genescreen/genescreen/cmd/registry"
)

var log = logging.MustGetLogger("genescreen")

// BuildStats summarizes one database build pass.
type BuildStats struct {
	Built   int // databases built in this pass
	Skipped int // complete databases reused
	Missing int // genomes whose contig file was absent
	Failed  int // makeblastdb failures
}

// BuildDatabases ensures a nucleotide database exists for every genome of
// the registry. A complete database is reused unless force is set. A missing
// contig file or a makeblastdb failure is logged and the genome is skipped,
// never fatal to the run, and never retried.
func BuildDatabases(ctx context.Context, runner Runner, reg registry.Registry, dbDir string, force bool) (BuildStats, error) {
	var stats BuildStats

	if err := os.MkdirAll(dbDir, 0777); err != nil {
		return stats, errors.Wrap(err, dbDir)
	}

	for _, g := range reg {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if !force && DBExists(dbDir, g.ID) {
			log.Debugf("BLAST database exists for %s, skipping", g.ID)
			stats.Skipped++
			continue
		}

		if _, err := os.Stat(g.Path); err != nil {
			log.Warningf("contig file missing for %s: %s", g.ID, g.Path)
			stats.Missing++
			continue
		}

		if err := runner.MakeDB(ctx, g.Path, DBPath(dbDir, g.ID)); err != nil {
			log.Errorf("failed to build BLAST database for %s: %s", g.ID, err)
			stats.Failed++
			continue
		}
		stats.Built++
	}
	return stats, nil
}
