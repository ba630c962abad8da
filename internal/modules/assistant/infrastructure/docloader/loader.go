package docloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/internal/modules/assistant/infrastructure/chunking"
	"QueryLink/pkg/util"
	"QueryLink/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

const (
	DocTypeTable    = "table_documentation"
	DocTypeDatabase = "database_documentation"
)

// IngestEvent 异步加载时发往 Kafka 的文档事件
type IngestEvent struct {
	SourcePath string `json:"source_path"`
	Title      string `json:"title"`
	DocType    string `json:"doc_type"`
	Content    string `json:"content"`
}

// Ingestor 文档入库：切片 → 向量化 → 幂等 Upsert。
// 同一文件重复加载产生相同的切片 ID，不会污染集合。
type Ingestor struct {
	embedder embedding.Embedder
	vs       repository.VectorStore
	chunker  *chunking.DocChunker
}

func NewIngestor(embedder embedding.Embedder, vs repository.VectorStore, chunker *chunking.DocChunker) (*Ingestor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	if chunker == nil {
		chunker = chunking.NewDocChunker(0, 0)
	}
	return &Ingestor{embedder: embedder, vs: vs, chunker: chunker}, nil
}

// IngestContent 单篇文档入库，返回写入的切片数
func (in *Ingestor) IngestContent(ctx context.Context, sourcePath, title, docType, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}

	chunks, err := in.chunker.Chunk(ctx, content)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	vecs, err := in.embedder.EmbedStrings(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got=%d want=%d", len(vecs), len(chunks))
	}

	tagsJSON := marshalTags(title, docType)
	records := make([]repository.DocVectorRecord, 0, len(chunks))
	for i, c := range chunks {
		vec32 := make([]float32, len(vecs[i]))
		for j, v := range vecs[i] {
			vec32[j] = float32(v)
		}
		records = append(records, repository.DocVectorRecord{
			// 内容寻址 ID：同一文件第 i 片重复加载即覆盖
			ID:         util.DeterministicID(sourcePath, fmt.Sprintf("%d", i)),
			Vector:     vec32,
			Title:      title,
			SourcePath: sourcePath,
			DocType:    docType,
			Content:    c,
			TagsJSON:   tagsJSON,
		})
	}

	if err := in.vs.UpsertDocs(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// IngestFile 读取单个文档文件并入库
func (in *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	name := filepath.Base(path)
	return in.IngestContent(ctx, path, TitleFromFilename(name), DocTypeForFile(name), string(content))
}

// LoadDir 加载目录下全部 *.md 文档，单个文件失败不中断其余文件
func (in *Ingestor) LoadDir(ctx context.Context, dir string) (files, chunks int, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return 0, 0, err
	}
	if len(matches) == 0 {
		return 0, 0, fmt.Errorf("no markdown files found in %s", dir)
	}

	for _, path := range matches {
		n, err := in.IngestFile(ctx, path)
		if err != nil {
			zlog.Error("failed to load document",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		files++
		chunks += n
		zlog.Info("document loaded",
			zap.String("path", path),
			zap.Int("chunks", n))
	}
	return files, chunks, nil
}

// TitleFromFilename "ordhdr_table.md" → "Ordhdr Table"
func TitleFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	words := strings.Split(strings.ReplaceAll(stem, "-", "_"), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// DocTypeForFile 文件名含 "table" 视为单表文档，否则为库级文档
func DocTypeForFile(name string) string {
	if strings.Contains(strings.ToLower(name), "table") {
		return DocTypeTable
	}
	return DocTypeDatabase
}

func marshalTags(title, docType string) string {
	tags := []string{docType}
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if w != "table" && w != "documentation" {
			tags = append(tags, w)
		}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}
