package llm

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"labelbot/internal/domain"
)

// Example is an already-labeled sample offered to the model as context.
type Example struct {
	Text  string
	Label domain.Label
}

// ExamplesFromSamples pairs labeled samples with their labels.
func ExamplesFromSamples(samples []domain.Sample, labels []domain.Label) []Example {
	n := min(len(samples), len(labels))
	out := make([]Example, 0, n)
	for i := 0; i < n; i++ {
		if labels[i].IsUnset() {
			continue
		}
		out = append(out, Example{
			Text:  strings.TrimSpace(samples[i].Instruction + " " + samples[i].Output),
			Label: labels[i],
		})
	}
	return out
}

type sparseVec = map[int]float64

type tfidfIndex struct {
	vocab map[string]int
	idf   []float64
	docs  []sparseVec
	items []Example
}

// tokenize splits on anything that is not a letter or digit, so Hangul runs
// stay whole words.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func buildTFIDFIndex(items []Example) *tfidfIndex {
	vocab := make(map[string]int)
	for _, item := range items {
		for _, tok := range tokenize(item.Text) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(items))
	n := float64(len(items))
	for i, item := range items {
		tf := make(map[int]int)
		for _, tok := range tokenize(item.Text) {
			tf[vocab[tok]]++
		}
		vec := make(sparseVec, len(tf))
		for idx, count := range tf {
			vec[idx] = float64(count)
			df[idx]++
		}
		docs[i] = vec
	}

	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}
	for _, vec := range docs {
		for idx := range vec {
			vec[idx] *= idf[idx]
		}
	}

	return &tfidfIndex{vocab: vocab, idf: idf, docs: docs, items: items}
}

func (idx *tfidfIndex) queryVec(query string) sparseVec {
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := make(sparseVec, len(tf))
	for i, count := range tf {
		vec[i] = float64(count) * idx.idf[i]
	}
	return vec
}

// topKIndices returns the indices of the top-K most similar examples.
func (idx *tfidfIndex) topKIndices(query string, k int) []int {
	if len(idx.items) == 0 || k <= 0 {
		return nil
	}
	qvec := idx.queryVec(query)
	if len(qvec) == 0 {
		return nil
	}

	type scored struct {
		index int
		score float64
	}
	var results []scored
	for i, dvec := range idx.docs {
		if sim := cosineSim(qvec, dvec); sim > 0 {
			results = append(results, scored{i, sim})
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})
	if len(results) > k {
		results = results[:k]
	}
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.index
	}
	return out
}

func (idx *tfidfIndex) topKForBatch(queries []string, k int) []Example {
	if len(idx.items) == 0 || k <= 0 {
		return nil
	}
	seen := make(map[int]bool)
	var out []Example
	for _, q := range queries {
		for _, docIdx := range idx.topKIndices(q, k) {
			if !seen[docIdx] {
				seen[docIdx] = true
				out = append(out, idx.items[docIdx])
			}
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for i, va := range a {
		if vb, ok := b[i]; ok {
			dot += va * vb
		}
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
