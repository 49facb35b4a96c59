// Package align pairs up the word sequences of two engine transcripts so
// that downstream consolidation can tell agreements from disagreements.
package align

import (
	"strings"
	"unicode"

	"github.com/beliczki/transcriber/internal/transcript"
)

// Normalize lowercases a token and strips punctuation. Comparison between
// engines happens on the normalized form only; the original token text is
// preserved in the alignment output.
func Normalize(token string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(token) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		// Token was pure punctuation. Compare it literally so two engines
		// both emitting "—" still count as agreeing.
		return strings.ToLower(token)
	}
	return b.String()
}

// Words aligns two word sequences by minimum edit distance over normalized
// tokens. Gaps appear where one engine produced fewer words than the other.
// When several minimum-cost alignments exist, the diagonal (pair-up) move is
// preferred so the result carries as many agreement pairs as possible.
func Words(a, b []transcript.WordInfo) []transcript.AlignmentPair {
	n, m := len(a), len(b)

	normA := make([]string, n)
	for i, w := range a {
		normA[i] = Normalize(w.Word)
	}
	normB := make([]string, m)
	for j, w := range b {
		normB[j] = Normalize(w.Word)
	}

	// dp[i][j] = edit distance between a[:i] and b[:j].
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
		dp[i][0] = i
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := dp[i-1][j-1]
			if normA[i-1] != normB[j-1] {
				sub++
			}
			best := sub
			if del := dp[i-1][j] + 1; del < best {
				best = del
			}
			if ins := dp[i][j-1] + 1; ins < best {
				best = ins
			}
			dp[i][j] = best
		}
	}

	// Trace back from the corner, preferring the diagonal whenever it is
	// among the minimum-cost moves.
	pairs := make([]transcript.AlignmentPair, 0, max(n, m))
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && diagonalOptimal(dp, normA, normB, i, j):
			wa, wb := a[i-1], b[j-1]
			pairs = append(pairs, transcript.AlignmentPair{
				A:     &wa,
				B:     &wb,
				Agree: normA[i-1] == normB[j-1],
			})
			i--
			j--
		case i > 0 && (j == 0 || dp[i][j] == dp[i-1][j]+1):
			wa := a[i-1]
			pairs = append(pairs, transcript.AlignmentPair{A: &wa})
			i--
		default:
			wb := b[j-1]
			pairs = append(pairs, transcript.AlignmentPair{B: &wb})
			j--
		}
	}

	// Reverse into submission order and assign positions.
	for l, r := 0, len(pairs)-1; l < r; l, r = l+1, r-1 {
		pairs[l], pairs[r] = pairs[r], pairs[l]
	}
	for p := range pairs {
		pairs[p].Position = p
	}
	return pairs
}

func diagonalOptimal(dp [][]int, normA, normB []string, i, j int) bool {
	sub := dp[i-1][j-1]
	if normA[i-1] != normB[j-1] {
		sub++
	}
	return dp[i][j] == sub
}

// Agreements counts the pairs where both engines produced the same
// normalized token.
func Agreements(pairs []transcript.AlignmentPair) int {
	n := 0
	for _, p := range pairs {
		if p.Agree {
			n++
		}
	}
	return n
}

func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}
