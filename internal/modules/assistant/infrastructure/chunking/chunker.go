package chunking

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// DocChunker 将文档文本切分为带重叠的片段，供向量化入库
type DocChunker struct {
	ChunkSize    int
	ChunkOverlap int

	initOnce sync.Once
	initErr  error
	splitter document.Transformer
}

func NewDocChunker(size, overlap int) *DocChunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &DocChunker{ChunkSize: size, ChunkOverlap: overlap}
}

// Chunk 切分单个文档文本。使用递归切分器，优先在 Markdown
// 段落/标题边界断开；基于 rune 计数，多字节字符不会被截断。
func (c *DocChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	if text == "" {
		return []string{}, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  []string{"\n## ", "\n### ", "\n\n", "\n", ". ", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.splitter = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.splitter == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}

	if len([]rune(text)) <= c.ChunkSize {
		return []string{text}, nil
	}

	frags, err := c.splitter.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		if f == nil || f.Content == "" {
			continue
		}
		out = append(out, f.Content)
	}
	return out, nil
}
