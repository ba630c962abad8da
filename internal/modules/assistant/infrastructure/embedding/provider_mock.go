package embedding

import (
	"context"
	"crypto/md5"

	"github.com/cloudwego/eino/components/embedding"
)

// MockEmbedder 离线/测试用的确定性向量化：同一文本恒得同一向量。
type MockEmbedder struct {
	Dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 1536
	}
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	result := make([][]float64, len(texts))
	for i, t := range texts {
		sum := md5.Sum([]byte(t))
		vec := make([]float64, m.Dim)
		for j := 0; j < m.Dim; j++ {
			vec[j] = float64(sum[j%len(sum)]) / 255.0
		}
		result[i] = vec
	}
	return result, nil
}

// 确保实现接口
var _ embedding.Embedder = (*MockEmbedder)(nil)
