package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lunarhue/textqa/internal/database"
	"github.com/lunarhue/textqa/internal/repository"
	"github.com/lunarhue/textqa/internal/segment"
	"github.com/lunarhue/textqa/internal/vectordb"
	"github.com/lunarhue/textqa/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// EnableAsyncProcessing 启用异步处理
func (s *DocumentService) EnableAsyncProcessing(queue taskqueue.Queue) {
	s.asyncEnabled = true
	s.taskQueue = queue

	// 确保重要依赖已设置
	if s.statusManager == nil {
		s.logger.Warn("Status manager not set, creating default one")
		if s.repo == nil {
			s.repo = repository.NewDocumentRepository()
		}
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}

	// 使用已有数据库连接和新的队列创建仓储
	s.repo = repository.NewDocumentRepositoryWithQueue(database.DB, queue)

	// 注册任务回调处理器
	s.registerTaskHandlers()

	s.logger.Info("Async document processing enabled")
}

// DisableAsyncProcessing 禁用异步处理
func (s *DocumentService) DisableAsyncProcessing() {
	s.asyncEnabled = false
	s.logger.Info("Async document processing disabled")
}

// registerTaskHandlers 注册任务回调处理器
func (s *DocumentService) registerTaskHandlers() {
	if s.taskQueue == nil {
		s.logger.Warn("Task queue not available, cannot register handlers")
		return
	}

	processor := taskqueue.GetSharedCallbackProcessor(s.taskQueue, s.logger)

	processor.RegisterHandler(taskqueue.TaskDocumentParse, s.handleDocumentParseResult)
	processor.RegisterHandler(taskqueue.TaskTextSegment, s.handleTextSegmentResult)
	processor.RegisterHandler(taskqueue.TaskVectorize, s.handleVectorizeResult)
	processor.RegisterHandler(taskqueue.TaskProcessComplete, s.handleProcessCompleteResult)

	s.logger.Info("Registered task handlers")
}

// handleDocumentParseResult 处理文档解析任务结果
func (s *DocumentService) handleDocumentParseResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
	}).Info("Handling document parse result")

	var parseResult taskqueue.DocumentParseResult
	if err := json.Unmarshal(result, &parseResult); err != nil {
		return fmt.Errorf("failed to unmarshal document parse result: %w", err)
	}

	// 更新文档处理进度
	if err := s.statusManager.UpdateProgress(ctx, task.DocumentID, 30); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	// 检查内容是否为空
	if parseResult.Content == "" {
		err := fmt.Errorf("empty document content")
		_ = s.statusManager.MarkAsFailed(ctx, task.DocumentID, err.Error())
		return err
	}

	return nil
}

// handleTextSegmentResult 处理段落切分任务结果
func (s *DocumentService) handleTextSegmentResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
	}).Info("Handling text segment result")

	var segmentResult taskqueue.TextSegmentResult
	if err := json.Unmarshal(result, &segmentResult); err != nil {
		return fmt.Errorf("failed to unmarshal text segment result: %w", err)
	}

	// 更新文档处理进度
	if err := s.statusManager.UpdateProgress(ctx, task.DocumentID, 60); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	return nil
}

// handleVectorizeResult 处理向量化任务结果
func (s *DocumentService) handleVectorizeResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
	}).Info("Handling vectorize result")

	var vectorizeResult taskqueue.VectorizeResult
	if err := json.Unmarshal(result, &vectorizeResult); err != nil {
		return fmt.Errorf("failed to unmarshal vectorize result: %w", err)
	}

	// 将向量数据保存到向量数据库
	if len(vectorizeResult.Vectors) > 0 {
		if err := s.saveVectorsToDatabase(ctx, task.DocumentID, &vectorizeResult); err != nil {
			s.logger.WithError(err).Error("Failed to save vectors to database")
			return err
		}
	}

	// 更新文档完成状态
	if err := s.statusManager.MarkAsCompleted(ctx, task.DocumentID, vectorizeResult.VectorCount); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
		return err
	}

	return nil
}

// handleProcessCompleteResult 处理完整流程任务结果
func (s *DocumentService) handleProcessCompleteResult(ctx context.Context, task *taskqueue.Task, result json.RawMessage) error {
	s.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": task.DocumentID,
	}).Info("Handling process complete result")

	var completeResult taskqueue.ProcessCompleteResult
	if err := json.Unmarshal(result, &completeResult); err != nil {
		return fmt.Errorf("failed to unmarshal process complete result: %w", err)
	}

	// 检查处理状态
	if completeResult.Error != "" {
		s.logger.WithFields(logrus.Fields{
			"document_id": task.DocumentID,
			"error":       completeResult.Error,
		}).Error("Document processing failed")

		if err := s.statusManager.MarkAsFailed(ctx, task.DocumentID, completeResult.Error); err != nil {
			s.logger.WithError(err).Error("Failed to mark document as failed")
		}
		return fmt.Errorf("document processing failed: %s", completeResult.Error)
	}

	// 如果向量数据已生成，保存到向量数据库
	if len(completeResult.Vectors) > 0 {
		vectorResult := taskqueue.VectorizeResult{
			DocumentID:  task.DocumentID,
			Vectors:     completeResult.Vectors,
			VectorCount: completeResult.VectorCount,
			Dimension:   completeResult.Dimension,
		}

		if err := s.saveVectorsToDatabase(ctx, task.DocumentID, &vectorResult); err != nil {
			s.logger.WithError(err).Error("Failed to save vectors to database")
			// 继续处理，不影响文档完成状态
		}
	}

	// 解析和切分都成功时标记文档为已完成
	// 即使向量化失败，也要标记为完成
	if completeResult.ParseStatus == "completed" && completeResult.SegmentStatus == "completed" {
		if err := s.statusManager.MarkAsCompleted(ctx, task.DocumentID, completeResult.SegmentCount); err != nil {
			s.logger.WithError(err).Error("Failed to mark document as completed")
			return err
		}

		// 如果向量化失败，仅使用日志警告
		if completeResult.VectorStatus == "failed" {
			s.logger.WithField("document_id", task.DocumentID).Warn(
				"Document marked as completed but vectorization failed. Search functionality may be limited.")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":   task.DocumentID,
		"segment_count": completeResult.SegmentCount,
		"vector_count":  completeResult.VectorCount,
	}).Info("Document processing completed successfully")

	return nil
}

// saveVectorsToDatabase 将向量保存到向量数据库
func (s *DocumentService) saveVectorsToDatabase(ctx context.Context, documentID string, result *taskqueue.VectorizeResult) error {
	// 获取文档信息，用于保存向量数据
	doc, err := s.statusManager.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to get document info: %w", err)
	}

	// 构建文档对象批量列表
	docs := make([]vectordb.Document, 0, len(result.Vectors))
	for _, vector := range result.Vectors {
		// 检查向量数据有效性
		if vector.SegmentIndex < 0 || len(vector.Vector) == 0 {
			s.logger.WithFields(logrus.Fields{
				"segment_index": vector.SegmentIndex,
				"document_id":   documentID,
			}).Warn("Invalid vector data, skipping")
			continue
		}

		vectorData := make([]float32, len(vector.Vector))
		copy(vectorData, vector.Vector)

		vectorDoc := vectordb.Document{
			ID:        fmt.Sprintf("%s_%d", documentID, vector.SegmentIndex),
			FileID:    documentID,
			FileName:  doc.FileName,
			Position:  vector.SegmentIndex,
			Vector:    vectorData,
			CreatedAt: time.Now(),
			Metadata: map[string]interface{}{
				"file_type": doc.FileType,
			},
		}

		docs = append(docs, vectorDoc)
	}

	// 批量添加到向量数据库
	if len(docs) > 0 {
		if err := s.vectorDB.AddBatch(docs); err != nil {
			return fmt.Errorf("failed to add vectors to database: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"document_id":  documentID,
			"vector_count": len(docs),
		}).Info("Vectors saved to database")
	}

	return nil
}

// WaitForTaskResult 等待任务完成并返回结果
func (s *DocumentService) WaitForTaskResult(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.Task, error) {
	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, fmt.Errorf("async processing not enabled or task queue not configured")
	}

	// 设置超时上下文
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 等待任务完成
	task, err := s.taskQueue.WaitForTask(ctx, taskID, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for task: %w", err)
	}

	// 检查任务状态
	if task.Status == taskqueue.StatusFailed {
		return task, fmt.Errorf("task failed: %s", task.Error)
	}

	return task, nil
}

// DocumentTaskHandler 文档处理任务执行器
// 实现taskqueue.Handler接口，在工作进程内执行入队的文档处理任务
type DocumentTaskHandler struct {
	service *DocumentService
	logger  *logrus.Logger
}

// NewDocumentTaskHandler 创建文档任务执行器
func NewDocumentTaskHandler(service *DocumentService, logger *logrus.Logger) *DocumentTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentTaskHandler{
		service: service,
		logger:  logger,
	}
}

// GetTaskTypes 返回支持的任务类型
func (h *DocumentTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{
		taskqueue.TaskProcessComplete,
		taskqueue.TaskTextSegment,
	}
}

// ProcessTask 执行任务
func (h *DocumentTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskProcessComplete:
		return h.processComplete(ctx, task)
	case taskqueue.TaskTextSegment:
		return h.processTextSegment(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

// processComplete 执行完整的文档处理流程
func (h *DocumentTaskHandler) processComplete(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.ProcessCompletePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal process payload: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": payload.DocumentID,
		"file_path":   payload.FilePath,
	}).Info("Executing document processing task")

	result := taskqueue.ProcessCompleteResult{
		DocumentID:    payload.DocumentID,
		ParseStatus:   "completed",
		SegmentStatus: "completed",
		VectorStatus:  "completed",
	}

	if err := h.service.processDocumentSync(ctx, payload.DocumentID, payload.FilePath); err != nil {
		result.Error = err.Error()
		result.ParseStatus = "failed"
		result.SegmentStatus = "failed"
		result.VectorStatus = "failed"
		if updateErr := h.service.taskQueue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusFailed, result, err.Error()); updateErr != nil {
			h.logger.WithError(updateErr).Error("Failed to update task status")
		}
		return err
	}

	// 统计切分出的段落数量
	if count, err := h.service.repo.CountSegments(payload.DocumentID); err == nil {
		result.SegmentCount = count
		result.VectorCount = count
	}

	if err := h.service.taskQueue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).Error("Failed to update task status")
	}
	if err := h.service.taskQueue.NotifyTaskUpdate(ctx, task.ID); err != nil {
		h.logger.WithError(err).Debug("Failed to notify task update")
	}

	return nil
}

// processTextSegment 执行段落切分任务
func (h *DocumentTaskHandler) processTextSegment(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.TextSegmentPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal segment payload: %w", err)
	}

	cfg := segment.DefaultConfig()
	if payload.ShortLineMax > 0 {
		cfg.ShortLineMax = payload.ShortLineMax
	}
	if payload.LongLineMin > 0 {
		cfg.LongLineMin = payload.LongLineMin
	}
	if payload.MinSegmentLen > 0 {
		cfg.MinSegmentLen = payload.MinSegmentLen
	}
	if payload.MaxRepeatRun > 0 {
		cfg.MaxRepeatRun = payload.MaxRepeatRun
	}

	segments := segment.NewSegmenter(cfg).Split(payload.Content)

	result := taskqueue.TextSegmentResult{
		DocumentID:   payload.DocumentID,
		Segments:     make([]taskqueue.SegmentInfo, 0, len(segments)),
		SegmentCount: len(segments),
	}
	for _, seg := range segments {
		result.Segments = append(result.Segments, taskqueue.SegmentInfo{
			Text:  seg.Text,
			Index: seg.Index,
		})
	}

	if err := h.service.taskQueue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""); err != nil {
		h.logger.WithError(err).Error("Failed to update task status")
	}
	if err := h.service.taskQueue.NotifyTaskUpdate(ctx, task.ID); err != nil {
		h.logger.WithError(err).Debug("Failed to notify task update")
	}

	return nil
}
