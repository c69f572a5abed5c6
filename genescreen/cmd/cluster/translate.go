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

package cluster

import (
	"fmt"

	"github.com/shenwei356/bio/seq"
)

// translation table 11, the standard bacterial, archaeal and plant plastid code
const translTable = 11

// Translate translates a nucleotide sequence to protein with the bacterial
// genetic code, frame 1. Internal stop codons are kept as '*', unknown
// codons become 'X'.
func Translate(nt []byte) ([]byte, error) {
	if len(nt) < 3 {
		return nil, fmt.Errorf("sequence too short to translate: %d bp", len(nt))
	}

	s, err := seq.NewSeq(seq.DNAredundant, nt)
	if err != nil {
		return nil, err
	}
	p, err := s.Translate(translTable, 1, false, false, true, false)
	if err != nil {
		return nil, err
	}
	return p.Seq, nil
}
