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
	"github.com/rdleal/intervalst/interval"
)

// CountOverlaps counts hits whose subject span intersects an earlier hit on
// the same contig of the same isolate. Overlapping hits are kept, every hit
// yields one extraction and deduplication happens at the cluster stage over
// sequence content; the count is only reported as a diagnostic.
func CountOverlaps(hits []Hit) int {
	cmpFn := func(x, y int) int { return x - y }
	itrees := make(map[string]*interval.SearchTree[int, int], 8)

	var n int
	for i, h := range hits {
		start, end := h.Start, h.End
		if start > end { // reverse strand
			start, end = end, start
		}

		key := h.Isolate + "\x00" + h.Subject
		itree, ok := itrees[key]
		if !ok {
			itree = interval.NewSearchTree[int, int](cmpFn)
			itrees[key] = itree
		}

		// half-open intervals, the tree rejects empty ranges
		if _, ok = itree.AnyIntersection(start, end+1); ok {
			n++
		}
		_ = itree.Insert(start, end+1, i)
	}
	return n
}
