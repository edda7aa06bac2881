package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/api"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/types"
)

// =============================================================================
// 🗂️ 文件管理 Handler
// =============================================================================

// FileHandler 文件管理处理器
type FileHandler struct {
	ingestor *rag.Ingestor
	logger   *zap.Logger
}

// NewFileHandler 创建文件管理处理器
func NewFileHandler(ingestor *rag.Ingestor, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{
		ingestor: ingestor,
		logger:   logger.With(zap.String("component", "file_handler")),
	}
}

// extractFileID 从请求中提取文件 ID（Go 1.22+ PathValue 优先，回退到路径解析）
func extractFileID(r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		// 回退：从路径手动解析 /api/v1/files/{id}[...]
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 4 {
			return "", false
		}
		id = parts[3]
	}
	if id == "" {
		return "", false
	}
	return id, true
}

func fileInfoFrom(rec rag.FileRecord) api.FileInfo {
	return api.FileInfo{
		ID:         rec.ID,
		Filename:   rec.Filename,
		Active:     rec.Active,
		ChunkCount: rec.ChunkCount,
		CreatedAt:  rec.CreatedAt,
	}
}

// HandleList 处理 GET /api/v1/files 请求
// @Summary 列出文件
// @Description 按入库时间列出所有已登记文件
// @Tags 文档
// @Produce json
// @Success 200 {object} Response{data=[]api.FileInfo} "文件列表"
// @Router /api/v1/files [get]
func (h *FileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.ingestor.ListFiles(r.Context())
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	infos := make([]api.FileInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, fileInfoFrom(rec))
	}
	WriteSuccess(w, infos)
}

// HandleSetActive 处理 PATCH /api/v1/files/{id}/active 请求
// @Summary 切换文件可见性
// @Description 将文件的所有分块在检索中启用或停用
// @Tags 文档
// @Accept json
// @Produce json
// @Success 200 {object} Response "切换成功"
// @Failure 404 {object} Response "文件不存在"
// @Router /api/v1/files/{id}/active [patch]
func (h *FileHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := extractFileID(r)
	if !ok {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "missing file id"), h.logger)
		return
	}

	var req api.SetActiveRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := h.ingestor.SetFileActive(r.Context(), id, req.Active); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("file visibility changed",
		zap.String("file_id", id),
		zap.Bool("active", req.Active),
	)
	WriteSuccess(w, map[string]any{"id": id, "active": req.Active})
}

// HandleDelete 处理 DELETE /api/v1/files/{id} 请求
// @Summary 删除文件
// @Description 删除文件登记及其全部向量分块
// @Tags 文档
// @Produce json
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "文件不存在"
// @Router /api/v1/files/{id} [delete]
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := extractFileID(r)
	if !ok {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "missing file id"), h.logger)
		return
	}

	if err := h.ingestor.DeleteFile(r.Context(), id); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("file deleted", zap.String("file_id", id))
	WriteSuccess(w, map[string]any{"id": id})
}
