package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/api"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/rag/loader"
	"github.com/BaSui01/ragserve/types"
)

// =============================================================================
// 📄 文档上传 Handler
// =============================================================================

// maxUploadBytes 单次上传请求体上限（32 MiB）。
const maxUploadBytes = 32 << 20

// IngestionMetrics 上传指标记录接口
type IngestionMetrics interface {
	RecordIngestion(chunks int)
}

type nopIngestionMetrics struct{}

func (nopIngestionMetrics) RecordIngestion(int) {}

// UploadHandler 文档上传处理器
type UploadHandler struct {
	extractors *loader.Registry
	ingestor   *rag.Ingestor
	metrics    IngestionMetrics
	logger     *zap.Logger
}

// NewUploadHandler 创建文档上传处理器
func NewUploadHandler(extractors *loader.Registry, ingestor *rag.Ingestor, metrics IngestionMetrics, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopIngestionMetrics{}
	}
	return &UploadHandler{
		extractors: extractors,
		ingestor:   ingestor,
		metrics:    metrics,
		logger:     logger.With(zap.String("component", "upload_handler")),
	}
}

// HandleUpload 处理 POST /upload_file 请求
// @Summary 上传文档
// @Description 接收 multipart 文件，抽取文本并切块入库
// @Tags 文档
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} Response{data=api.UploadResponse} "上传成功"
// @Failure 400 {object} Response "内容为空或解析失败"
// @Failure 415 {object} Response "不支持的文件类型"
// @Router /upload_file [post]
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "invalid multipart body").WithCause(err), h.logger)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "no files provided"), h.logger)
		return
	}

	resp := api.UploadResponse{UploadedIDs: make([]string, 0, len(files))}
	for _, header := range files {
		rec, err := h.ingestOne(r, header)
		if err != nil {
			// 任一文件失败即整体失败；已入库的文件保留，幂等重传会得到新 ID
			WriteDomainError(w, err, h.logger)
			return
		}
		resp.UploadedIDs = append(resp.UploadedIDs, rec.ID)
		resp.ChunkCount += rec.ChunkCount
		h.metrics.RecordIngestion(rec.ChunkCount)

		h.logger.Info("upload accepted",
			zap.String("file_id", rec.ID),
			zap.String("filename", rec.Filename),
			zap.Int("chunks", rec.ChunkCount),
		)
	}

	WriteSuccessStatus(w, http.StatusCreated, resp)
}

func (h *UploadHandler) ingestOne(r *http.Request, header *multipart.FileHeader) (rag.FileRecord, error) {
	f, err := header.Open()
	if err != nil {
		return rag.FileRecord{}, types.NewError(types.ErrInvalidRequest, "cannot open uploaded file").WithCause(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return rag.FileRecord{}, types.NewError(types.ErrInvalidRequest, "cannot read uploaded file").WithCause(err)
	}

	text, err := h.extractors.Extract(r.Context(), header.Filename, data)
	if err != nil {
		return rag.FileRecord{}, err
	}

	return h.ingestor.IngestText(r.Context(), header.Filename, text)
}
