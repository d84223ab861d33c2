// Package features turns free text into fixed-size TF-IDF vectors over a
// vocabulary fitted once on the training corpus.
package features

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxFeatures 默认词表上限
const DefaultMaxFeatures = 1000

var ErrNotFitted = errors.New("features: empty corpus")

var tokenPattern = regexp.MustCompile(`\w\w+`)

// Space 拟合后的特征空间：词 -> 下标，以及每个下标的 IDF 权重
// 训练结束后只读
type Space struct {
	Vocabulary  map[string]int
	IDF         []float64
	MaxFeatures int
	Documents   int
}

// Tokenize 小写化，取至少两个字符的词，去掉英文停用词
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Fit 在语料上拟合词表和 IDF
// 词表按全语料词频取前 maxFeatures 个（同频按字典序），下标按字典序分配
func Fit(texts []string, maxFeatures int) (*Space, error) {
	if len(texts) == 0 {
		return nil, ErrNotFitted
	}
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}

	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, tok := range Tokenize(text) {
			termFreq[tok]++
			if !seen[tok] {
				docFreq[tok]++
				seen[tok] = true
			}
		}
	}
	if len(termFreq) == 0 {
		return nil, ErrNotFitted
	}

	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termFreq[terms[i]] != termFreq[terms[j]] {
			return termFreq[terms[i]] > termFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(texts))
	space := &Space{
		Vocabulary:  make(map[string]int, len(terms)),
		IDF:         make([]float64, len(terms)),
		MaxFeatures: maxFeatures,
		Documents:   len(texts),
	}
	for i, term := range terms {
		space.Vocabulary[term] = i
		// 平滑 IDF: ln((1+n)/(1+df)) + 1
		space.IDF[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	return space, nil
}

// Dim 向量维度
func (s *Space) Dim() int {
	return len(s.IDF)
}

// Terms 按下标排列的词表
func (s *Space) Terms() []string {
	terms := make([]string, len(s.IDF))
	for term, i := range s.Vocabulary {
		terms[i] = term
	}
	return terms
}

// Transform 把任意文本投影到特征空间，词表外的词忽略，结果做 L2 归一化
// 空文本得到全零向量
func (s *Space) Transform(text string) []float64 {
	vec := make([]float64, s.Dim())
	for _, tok := range Tokenize(text) {
		if i, ok := s.Vocabulary[tok]; ok {
			vec[i]++
		}
	}

	var norm float64
	for i, count := range vec {
		if count == 0 {
			continue
		}
		vec[i] = count * s.IDF[i]
		norm += vec[i] * vec[i]
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// TransformAll 批量转换
func (s *Space) TransformAll(texts []string) [][]float64 {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = s.Transform(t)
	}
	return out
}
