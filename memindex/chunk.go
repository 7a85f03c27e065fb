package memindex

import "strings"

// chunk is one contiguous slice of a document, tracked by line range so
// chunk listings can point back into the source.
type chunk struct {
	startLine int // 1-based, inclusive
	endLine   int
	text      string
}

// splitChunks breaks content into line-aligned chunks of roughly
// chunkSize characters, overlapping by roughly overlap characters. Lines
// longer than chunkSize become chunks of their own.
func splitChunks(content string, chunkSize, overlap int) []chunk {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 8
	}

	lines := strings.Split(content, "\n")
	var chunks []chunk
	var cur []string
	curLen := 0
	start := 1

	flush := func(end int) {
		text := strings.TrimSpace(strings.Join(cur, "\n"))
		if text != "" {
			chunks = append(chunks, chunk{startLine: start, endLine: end, text: text})
		}
	}

	for i, line := range lines {
		lineNo := i + 1
		if curLen > 0 && curLen+len(line)+1 > chunkSize {
			flush(lineNo - 1)

			// Carry trailing lines into the next chunk for overlap.
			var kept []string
			keptLen := 0
			for j := len(cur) - 1; j >= 0 && keptLen < overlap; j-- {
				kept = append([]string{cur[j]}, kept...)
				keptLen += len(cur[j]) + 1
			}
			start = lineNo - len(kept)
			cur = kept
			curLen = keptLen
		}
		if curLen == 0 && len(cur) == 0 {
			start = lineNo
		}
		cur = append(cur, line)
		curLen += len(line) + 1
	}
	flush(len(lines))
	return chunks
}
