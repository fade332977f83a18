package retriever

import (
	"strings"
	"unicode"

	"github.com/yanyiwu/gojieba"
)

// sparseTokenizer pre-segments CJK query text into space-separated terms
// before it reaches the sparse/lexical leg of hybrid search. Neither
// ParadeDB's nor Elasticsearch's default text analyzers tokenize Chinese
// correctly on their own (there are no whitespace boundaries between
// words), so without this a Chinese query's sparse leg degenerates to one
// giant unmatched token.
type sparseTokenizer struct {
	jieba *gojieba.Jieba
}

// newSparseTokenizer loads jieba's bundled dictionary once; the returned
// tokenizer is safe for concurrent use across requests.
func newSparseTokenizer() *sparseTokenizer {
	return &sparseTokenizer{jieba: gojieba.NewJieba()}
}

// Close releases the jieba dictionary's underlying C resources.
func (t *sparseTokenizer) Close() {
	t.jieba.Free()
}

// PrepareSparseQuery returns queryText unchanged unless it contains CJK
// runes, in which case it returns the space-joined CutForSearch segments
// so the sparse leg's match query has real term boundaries to work with.
func (t *sparseTokenizer) PrepareSparseQuery(queryText string) string {
	if !containsCJK(queryText) {
		return queryText
	}
	segments := t.jieba.CutForSearch(queryText, true)
	return strings.Join(segments, " ")
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}
