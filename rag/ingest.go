package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/types"
)

// FileRegistry 上传文件的登记存储。块本身在向量索引里，
// 登记表只记录文件级状态，具体实现在 internal/database。
type FileRegistry interface {
	CreateFile(ctx context.Context, rec FileRecord) error
	GetFile(ctx context.Context, fileID string) (FileRecord, error)
	ListFiles(ctx context.Context) ([]FileRecord, error)
	SetFileActive(ctx context.Context, fileID string, active bool) error
	DeleteFile(ctx context.Context, fileID string) error
}

// Ingestor 文档入库服务：切分、向量化、写索引、登记文件。
// 可见性翻转通过删除加重插实现，块 ID 在整个生命周期内稳定。
type Ingestor struct {
	splitter *TextSplitter
	embedder EmbeddingProvider
	store    VectorStore
	registry FileRegistry
	logger   *zap.Logger
}

// NewIngestor 创建入库服务。logger 可为 nil。
func NewIngestor(splitter *TextSplitter, embedder EmbeddingProvider, store VectorStore, registry FileRegistry, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		registry: registry,
		logger:   logger.With(zap.String("component", "ingestor")),
	}
}

// chunkID 块 ID 由文件 ID 与块序号确定，可从登记信息重建。
func chunkID(fileID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", fileID, index)
}

func chunkIDs(rec FileRecord) []string {
	ids := make([]string, rec.ChunkCount)
	for i := range ids {
		ids[i] = chunkID(rec.ID, i)
	}
	return ids
}

// IngestText 入库一份已抽取的文本，返回文件登记信息。
// 文本切不出任何块时返回 ErrEmptyContent。
func (g *Ingestor) IngestText(ctx context.Context, filename, text string) (FileRecord, error) {
	chunks := g.splitter.Split(text)
	if len(chunks) == 0 {
		return FileRecord{}, types.NewError(types.ErrEmptyContent, "no chunks produced from file content")
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	embeddings, err := g.embedder.EmbedDocuments(ctx, contents)
	if err != nil {
		return FileRecord{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return FileRecord{}, fmt.Errorf("embedding count mismatch: got=%d want=%d", len(embeddings), len(chunks))
	}

	fileID := uuid.NewString()
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			ID:        chunkID(fileID, i),
			Content:   c.Content,
			Embedding: embeddings[i],
			Metadata: map[string]any{
				MetaFileID:     fileID,
				MetaFilename:   filename,
				MetaActive:     true,
				MetaChunkIndex: i,
				MetaTokenCount: c.TokenCount,
			},
		}
	}

	if err := g.store.Insert(ctx, docs); err != nil {
		return FileRecord{}, fmt.Errorf("index chunks: %w", err)
	}

	rec := FileRecord{
		ID:         fileID,
		Filename:   filename,
		Active:     true,
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.registry.CreateFile(ctx, rec); err != nil {
		// 登记失败时回滚索引，避免出现无主块。
		if delErr := g.store.Delete(ctx, chunkIDs(rec)); delErr != nil {
			g.logger.Error("rollback of indexed chunks failed",
				zap.String("file_id", fileID), zap.Error(delErr))
		}
		return FileRecord{}, fmt.Errorf("register file: %w", err)
	}

	g.logger.Info("file ingested",
		zap.String("file_id", fileID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))
	return rec, nil
}

// SetFileActive 翻转文件可见性。索引契约没有原地更新，
// 这里读出原块、删除、带新标志重插，块 ID 与向量保持不变。
func (g *Ingestor) SetFileActive(ctx context.Context, fileID string, active bool) error {
	rec, err := g.registry.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.Active == active {
		return nil
	}

	ids := chunkIDs(rec)
	docs, err := g.store.Get(ctx, ids)
	if err != nil {
		return fmt.Errorf("load chunks for visibility toggle: %w", err)
	}

	updated := make([]Document, 0, len(docs))
	for _, d := range docs {
		updated = append(updated, d.WithActive(active))
	}

	if err := g.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("remove chunks for visibility toggle: %w", err)
	}
	if err := g.store.Insert(ctx, updated); err != nil {
		return fmt.Errorf("reinsert chunks for visibility toggle: %w", err)
	}

	if err := g.registry.SetFileActive(ctx, fileID, active); err != nil {
		return err
	}

	g.logger.Info("file visibility changed",
		zap.String("file_id", fileID),
		zap.Bool("active", active))
	return nil
}

// DeleteFile 删除文件的全部块及其登记信息。
func (g *Ingestor) DeleteFile(ctx context.Context, fileID string) error {
	rec, err := g.registry.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	if err := g.store.Delete(ctx, chunkIDs(rec)); err != nil {
		return fmt.Errorf("delete indexed chunks: %w", err)
	}
	if err := g.registry.DeleteFile(ctx, fileID); err != nil {
		return err
	}

	g.logger.Info("file deleted", zap.String("file_id", fileID))
	return nil
}

// ListFiles 返回全部登记文件。
func (g *Ingestor) ListFiles(ctx context.Context) ([]FileRecord, error) {
	return g.registry.ListFiles(ctx)
}
