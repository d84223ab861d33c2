// Package artifacts persists the fitted feature space and the trained forest
// as a matched pair. Both blobs carry the same training run id; a pair whose
// halves come from different runs is refused at load time.
package artifacts

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go-threatnet/pkg/features"
	"go-threatnet/pkg/forest"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	VectorizerFile = "vectorizer.bin"
	ModelFile      = "model.bin"
)

var (
	ErrNotFound       = errors.New("artifacts: not found")
	ErrMismatchedPair = errors.New("artifacts: vectorizer and model do not belong together")
)

// Header 两个文件共有的元数据
type Header struct {
	RunID   string
	Dim     int
	SavedAt time.Time
}

type vectorizerBlob struct {
	Header Header
	Space  features.Space
}

type modelBlob struct {
	Header   Header
	Model    forest.Model
	Accuracy float64
}

// Bundle 加载后的只读产物，可被并发请求共享
type Bundle struct {
	Header   Header
	Space    *features.Space
	Model    *forest.Model
	Accuracy float64
}

// Classify 向量化后预测，返回类别、置信度和完整概率分布
func (b *Bundle) Classify(text string) (string, float64, map[string]float64) {
	proba := b.Model.PredictProba(b.Space.Transform(text))
	best, bestP := "", -1.0
	for _, label := range b.Model.Labels {
		if p := proba[label]; p > bestP {
			best, bestP = label, p
		}
	}
	return best, bestP, proba
}

// Save 用新的 run id 写入两个文件，每个文件先写临时文件再重命名
func Save(dir string, space *features.Space, model *forest.Model, accuracy float64) (Header, error) {
	if space.Dim() != model.Dim {
		return Header{}, fmt.Errorf("%w: vectorizer dim %d, model dim %d", ErrMismatchedPair, space.Dim(), model.Dim)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Header{}, fmt.Errorf("create artifact dir: %w", err)
	}

	h := Header{RunID: uuid.NewString(), Dim: model.Dim, SavedAt: time.Now().UTC()}
	if err := writeBlob(filepath.Join(dir, VectorizerFile), vectorizerBlob{Header: h, Space: *space}); err != nil {
		return Header{}, err
	}
	if err := writeBlob(filepath.Join(dir, ModelFile), modelBlob{Header: h, Model: *model, Accuracy: accuracy}); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Load 任一文件缺失返回 ErrNotFound，两个文件不是同一次训练产出返回 ErrMismatchedPair
func Load(dir string) (*Bundle, error) {
	var vec vectorizerBlob
	if err := readBlob(filepath.Join(dir, VectorizerFile), &vec); err != nil {
		return nil, err
	}
	var mod modelBlob
	if err := readBlob(filepath.Join(dir, ModelFile), &mod); err != nil {
		return nil, err
	}

	if vec.Header.RunID != mod.Header.RunID {
		return nil, fmt.Errorf("%w: run %s vs %s", ErrMismatchedPair, vec.Header.RunID, mod.Header.RunID)
	}
	if vec.Header.Dim != mod.Header.Dim || vec.Space.Dim() != mod.Model.Dim {
		return nil, fmt.Errorf("%w: dim %d vs %d", ErrMismatchedPair, vec.Space.Dim(), mod.Model.Dim)
	}

	return &Bundle{
		Header:   mod.Header,
		Space:    &vec.Space,
		Model:    &mod.Model,
		Accuracy: mod.Accuracy,
	}, nil
}

func writeBlob(path string, v interface{}) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		tmp.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func readBlob(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
