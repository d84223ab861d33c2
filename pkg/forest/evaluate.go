package forest

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Dataset 特征矩阵和标签
type Dataset struct {
	X [][]float64
	Y []string
}

func (d Dataset) Len() int {
	return len(d.Y)
}

// Split 按类别分层的随机划分，每个类别约 testRatio 的样本进入测试集
// 每个类别至少保留一个训练样本
func Split(X [][]float64, y []string, testRatio float64, seed int64) (train, test Dataset) {
	rng := rand.New(rand.NewSource(seed))

	byClass := make(map[string][]int)
	for i, l := range y {
		byClass[l] = append(byClass[l], i)
	}

	for _, label := range uniqueSorted(y) {
		idx := byClass[label]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		k := int(math.Round(testRatio * float64(len(idx))))
		if k >= len(idx) {
			k = len(idx) - 1
		}
		if k < 0 {
			k = 0
		}
		for _, i := range idx[:k] {
			test.X = append(test.X, X[i])
			test.Y = append(test.Y, y[i])
		}
		for _, i := range idx[k:] {
			train.X = append(train.X, X[i])
			train.Y = append(train.Y, y[i])
		}
	}
	return train, test
}

// ClassReport 单个类别的指标
type ClassReport struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

type Evaluation struct {
	Accuracy float64
	PerClass map[string]ClassReport
	Labels   []string
}

// Evaluate 在测试集上计算准确率和逐类 precision/recall/f1
func Evaluate(m *Model, test Dataset) Evaluation {
	ev := Evaluation{PerClass: make(map[string]ClassReport)}
	if test.Len() == 0 {
		return ev
	}

	tp := make(map[string]int)
	predicted := make(map[string]int)
	support := make(map[string]int)
	correct := 0
	for i, x := range test.X {
		got, _ := m.Predict(x)
		want := test.Y[i]
		support[want]++
		predicted[got]++
		if got == want {
			tp[want]++
			correct++
		}
	}
	ev.Accuracy = float64(correct) / float64(test.Len())

	labels := make([]string, 0, len(support)+len(predicted))
	labels = append(labels, test.Y...)
	for l := range predicted {
		labels = append(labels, l)
	}
	ev.Labels = uniqueSorted(labels)

	for _, l := range ev.Labels {
		var r ClassReport
		r.Support = support[l]
		if predicted[l] > 0 {
			r.Precision = float64(tp[l]) / float64(predicted[l])
		}
		if support[l] > 0 {
			r.Recall = float64(tp[l]) / float64(support[l])
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		ev.PerClass[l] = r
	}
	return ev
}

// String 文本形式的分类报告
func (e Evaluation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-16s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for _, l := range e.Labels {
		r := e.PerClass[l]
		fmt.Fprintf(&sb, "%-16s %9.2f %9.2f %9.2f %9d\n", l, r.Precision, r.Recall, r.F1, r.Support)
	}
	fmt.Fprintf(&sb, "%-16s %39.2f\n", "accuracy", e.Accuracy)
	return sb.String()
}
