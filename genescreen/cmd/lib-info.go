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
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// FileDBInfo is the metadata file in the BLAST database directory.
const FileDBInfo = "dbs.toml"

// DBInfo records the last database build pass. The databases are a cache:
// they are only invalidated with --force-db, never by content changes of the
// contig files.
type DBInfo struct {
	Version string    `toml:"genescreen"`
	BuiltAt time.Time `toml:"built-at"`

	Genomes int `toml:"genomes"`
	Built   int `toml:"built"`
	Skipped int `toml:"skipped"`
	Missing int `toml:"missing"`
	Failed  int `toml:"failed"`
}

func writeDBInfo(file string, info *DBInfo) error {
	data, err := toml.Marshal(info)
	if err != nil {
		return err
	}
	if err = os.WriteFile(file, data, 0644); err != nil {
		return errors.Wrap(err, file)
	}
	return nil
}

func readDBInfo(file string) (*DBInfo, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	info := &DBInfo{}
	if err = toml.Unmarshal(data, info); err != nil {
		return nil, errors.Wrap(err, file)
	}
	return info, nil
}
