package diff

import "strings"

// LineType classifies a line in an edit script.
type LineType int

const (
	Equal  LineType = iota // Line is unchanged between a and b.
	Insert                 // Line is present in b only.
	Delete                 // Line is present in a only.
)

// Line is a single line of an edit script.
type Line struct {
	Type    LineType
	Content string
}

// LineDiff computes a line-level diff between a and b.
func LineDiff(a, b string) []Line {
	return Myers(splitLines(a), splitLines(b))
}

// splitLines splits s into lines. A trailing newline does not produce an
// extra empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Myers computes the shortest edit script turning a into b in
// O((N+M)*D) time, D being the size of the script.
func Myers(a, b []string) []Line {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		return uniform(Insert, b)
	case m == 0:
		return uniform(Delete, a)
	}

	offset := n + m
	v := make([]int, 2*offset+1)
	// trace[d] is v after exploring edit distance d.
	var trace [][]int
	for d := 0; d <= offset; d++ {
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x, y = x+1, y+1
			}
			v[offset+k] = x
			if x >= n && y >= m {
				trace = append(trace, append([]int(nil), v...))
				return walkBack(trace, a, b, offset)
			}
		}
		trace = append(trace, append([]int(nil), v...))
	}
	return nil
}

func uniform(t LineType, lines []string) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = Line{Type: t, Content: l}
	}
	return out
}

// walkBack rebuilds the script from the last snapshot to the first.
func walkBack(trace [][]int, a, b []string, offset int) []Line {
	x, y := len(a), len(b)
	var rev []Line
	for d := len(trace) - 1; d > 0; d-- {
		prev := trace[d-1]
		k := x - y
		var pk int
		if k == -d || (k != d && prev[offset+k-1] < prev[offset+k+1]) {
			pk = k + 1
		} else {
			pk = k - 1
		}
		px := prev[offset+pk]
		py := px - pk
		for x > px && y > py {
			x, y = x-1, y-1
			rev = append(rev, Line{Type: Equal, Content: a[x]})
		}
		if pk == k-1 {
			x--
			rev = append(rev, Line{Type: Delete, Content: a[x]})
		} else {
			y--
			rev = append(rev, Line{Type: Insert, Content: b[y]})
		}
	}
	for x > 0 && y > 0 {
		x, y = x-1, y-1
		rev = append(rev, Line{Type: Equal, Content: a[x]})
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
