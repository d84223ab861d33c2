// Package forest is a bagged ensemble of CART decision trees over dense
// feature vectors. Training is reproducible for a given seed; a trained Model
// is read-only and safe for concurrent prediction.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/pool"
)

var (
	ErrNoSamples = errors.New("forest: no training samples")
	ErrShape     = errors.New("forest: inconsistent sample shape")
)

// Params 训练参数，零值字段取默认值
type Params struct {
	Trees    int
	MaxDepth int // 0 表示不限深度
	MinSplit int
	Seed     int64
}

func DefaultParams() Params {
	return Params{Trees: 100, MinSplit: 2, Seed: 42}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Trees <= 0 {
		p.Trees = d.Trees
	}
	if p.MinSplit < 2 {
		p.MinSplit = d.MinSplit
	}
	if p.MaxDepth < 0 {
		p.MaxDepth = 0
	}
	return p
}

// Node 扁平存储的树节点，Left < 0 表示叶子
type Node struct {
	Feature   int
	Threshold float64
	Left      int32
	Right     int32
	Dist      []float64 // 叶子上的类别分布
}

type Tree struct {
	Nodes []Node
}

func (t *Tree) leaf(x []float64) []float64 {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return n.Dist
		}
		var v float64
		if n.Feature < len(x) {
			v = x[n.Feature]
		}
		if v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Model 训练好的森林，字段导出以便 gob 持久化
type Model struct {
	Labels []string // 升序
	Forest []Tree
	Dim    int
	Params Params
}

// Train 每棵树在自助采样上生长，所有随机性来自 Seed
// 每棵树的子种子按顺序从主随机源取出，之后并行训练，结果与并发度无关
func Train(X [][]float64, y []string, p Params) (*Model, error) {
	if len(X) == 0 {
		return nil, ErrNoSamples
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShape, len(X), len(y))
	}
	dim := len(X[0])
	for i, row := range X {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), dim)
		}
	}
	p = p.withDefaults()

	labels := uniqueSorted(y)
	classOf := make(map[string]int, len(labels))
	for i, l := range labels {
		classOf[l] = i
	}
	target := make([]int, len(y))
	for i, l := range y {
		target[i] = classOf[l]
	}

	master := rand.New(rand.NewSource(p.Seed))
	seeds := make([]int64, p.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	mtry := int(math.Sqrt(float64(dim)))
	if mtry < 1 {
		mtry = 1
	}

	trees := make([]Tree, p.Trees)
	workers := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		workers.Go(func() {
			b := &builder{
				x:       X,
				y:       target,
				classes: len(labels),
				dim:     dim,
				mtry:    mtry,
				params:  p,
				rng:     rand.New(rand.NewSource(seeds[i])),
			}
			trees[i] = b.build()
		})
	}
	workers.Wait()

	return &Model{Labels: labels, Forest: trees, Dim: dim, Params: p}, nil
}

// Classes 模型认识的类别，升序
func (m *Model) Classes() []string {
	return append([]string(nil), m.Labels...)
}

// PredictProba 各树叶子分布的平均值，和为 1
func (m *Model) PredictProba(x []float64) map[string]float64 {
	sum := make([]float64, len(m.Labels))
	for i := range m.Forest {
		for c, p := range m.Forest[i].leaf(x) {
			sum[c] += p
		}
	}
	out := make(map[string]float64, len(m.Labels))
	n := float64(len(m.Forest))
	for c, label := range m.Labels {
		out[label] = sum[c] / n
	}
	return out
}

// Predict 概率最大的类别，并列时取字典序靠前的
func (m *Model) Predict(x []float64) (string, float64) {
	proba := m.PredictProba(x)
	best, bestP := "", -1.0
	for _, label := range m.Labels {
		if p := proba[label]; p > bestP {
			best, bestP = label, p
		}
	}
	return best, bestP
}

func uniqueSorted(y []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, l := range y {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

type builder struct {
	x       [][]float64
	y       []int
	classes int
	dim     int
	mtry    int
	params  Params
	rng     *rand.Rand
	nodes   []Node
}

type sample struct {
	v float64
	c int
}

func (b *builder) build() Tree {
	n := len(b.x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.Intn(n)
	}
	b.nodes = make([]Node, 0, 64)
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *builder) grow(idx []int, depth int) int32 {
	counts := make([]int, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}

	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1})

	if len(idx) < b.params.MinSplit || pure(counts) ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) {
		b.nodes[id].Dist = distribution(counts, len(idx))
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		b.nodes[id].Dist = distribution(counts, len(idx))
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit 评估 mtry 个非常量特征，全部是常量时继续往后取
func (b *builder) bestSplit(idx []int, counts []int) (int, float64, bool) {
	n := len(idx)
	best := gini(counts, n)
	bestFeature, bestThreshold := -1, 0.0

	samples := make([]sample, n)
	left := make([]int, b.classes)
	right := make([]int, b.classes)

	evaluated := 0
	for _, f := range b.rng.Perm(b.dim) {
		for k, i := range idx {
			samples[k] = sample{v: b.x[i][f], c: b.y[i]}
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].v < samples[j].v })
		if samples[0].v == samples[n-1].v {
			continue
		}
		evaluated++

		for c := range left {
			left[c] = 0
		}
		copy(right, counts)
		for k := 0; k < n-1; k++ {
			left[samples[k].c]++
			right[samples[k].c]--
			if samples[k].v == samples[k+1].v {
				continue
			}
			nl, nr := k+1, n-k-1
			score := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
			if score < best {
				best = score
				bestFeature = f
				bestThreshold = (samples[k].v + samples[k+1].v) / 2
			}
		}

		if evaluated >= b.mtry {
			break
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	var sq float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		sq += p * p
	}
	return 1 - sq
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func distribution(counts []int, n int) []float64 {
	dist := make([]float64, len(counts))
	if n == 0 {
		return dist
	}
	for c, k := range counts {
		dist[c] = float64(k) / float64(n)
	}
	return dist
}
