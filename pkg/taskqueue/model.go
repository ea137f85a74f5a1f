package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskDocumentParse 文档解析任务
	TaskDocumentParse TaskType = "document_parse"
	// TaskTextSegment 段落切分任务
	TaskTextSegment TaskType = "text_segment"
	// TaskVectorize 文本向量化任务
	TaskVectorize TaskType = "vectorize"
	// TaskProcessComplete 文档处理完整流程任务
	TaskProcessComplete TaskType = "process_complete"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据，不同任务类型对应不同结构
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// DocumentParsePayload 文档解析任务载荷
type DocumentParsePayload struct {
	FilePath string            `json:"file_path"` // 文件存储路径
	FileName string            `json:"file_name"` // 文件名
	FileType string            `json:"file_type"` // 文件类型
	Metadata map[string]string `json:"metadata"`  // 元数据
}

// DocumentParseResult 文档解析任务结果
type DocumentParseResult struct {
	Content string            `json:"content"` // 解析后的文本内容
	Title   string            `json:"title"`   // 文档标题（如果有）
	Meta    map[string]string `json:"meta"`    // 提取的元数据
	Error   string            `json:"error"`   // 错误信息（如果有）
	Pages   int               `json:"pages"`   // 文档页数（如果适用）
	Words   int               `json:"words"`   // 单词数
	Chars   int               `json:"chars"`   // 字符数
}

// TextSegmentPayload 段落切分任务载荷
// 阈值字段为0时使用切分器的默认配置
type TextSegmentPayload struct {
	DocumentID    string `json:"document_id"`     // 文档ID
	Content       string `json:"content"`         // 文本内容
	ShortLineMax  int    `json:"short_line_max"`  // 短行判定阈值
	LongLineMin   int    `json:"long_line_min"`   // 长行判定阈值
	MinSegmentLen int    `json:"min_segment_len"` // 段落最短保留长度
	MaxRepeatRun  int    `json:"max_repeat_run"`  // 同一字符最大连续重复次数
}

// SegmentInfo 段落信息
type SegmentInfo struct {
	Text  string `json:"text"`  // 段落文本
	Index int    `json:"index"` // 段落索引
}

// TextSegmentResult 段落切分任务结果
type TextSegmentResult struct {
	DocumentID   string        `json:"document_id"`   // 文档ID
	Segments     []SegmentInfo `json:"segments"`      // 段落列表
	SegmentCount int           `json:"segment_count"` // 段落数量
	Error        string        `json:"error"`         // 错误信息（如果有）
}

// VectorizePayload 文本向量化任务载荷
type VectorizePayload struct {
	DocumentID string        `json:"document_id"` // 文档ID
	Segments   []SegmentInfo `json:"segments"`    // 文本段落
	Model      string        `json:"model"`       // 嵌入模型名称
}

// VectorInfo 向量信息
type VectorInfo struct {
	SegmentIndex int       `json:"segment_index"` // 段落索引
	Vector       []float32 `json:"vector"`        // 向量数据
}

// VectorizeResult 向量化任务结果
type VectorizeResult struct {
	DocumentID  string       `json:"document_id"`  // 文档ID
	Vectors     []VectorInfo `json:"vectors"`      // 向量列表
	VectorCount int          `json:"vector_count"` // 向量数量
	Model       string       `json:"model"`        // 使用的模型
	Dimension   int          `json:"dimension"`    // 向量维度
	Error       string       `json:"error"`        // 错误信息（如果有）
}

// ProcessCompletePayload 完整处理流程任务载荷
type ProcessCompletePayload struct {
	DocumentID string            `json:"document_id"` // 文档ID
	FilePath   string            `json:"file_path"` // 文件路径
	FileName   string            `json:"file_name"` // 文件名
	FileType   string            `json:"file_type"` // 文件类型
	Metadata   map[string]string `json:"metadata"`  // 元数据
}

// ProcessCompleteResult 完整处理流程结果
type ProcessCompleteResult struct {
	DocumentID    string       `json:"document_id"`    // 文档ID
	SegmentCount  int          `json:"segment_count"`  // 段落数量
	VectorCount   int          `json:"vector_count"`   // 向量数量
	Dimension     int          `json:"dimension"`      // 向量维度
	PageCount     int          `json:"page_count"`     // 源文档页数（如果适用）
	ParseStatus   string       `json:"parse_status"`   // 解析状态
	SegmentStatus string       `json:"segment_status"` // 切分状态
	VectorStatus  string       `json:"vector_status"`  // 向量化状态
	Error         string       `json:"error"`          // 错误信息（如果有）
	Vectors       []VectorInfo `json:"vectors"`        // 可选，根据配置决定是否返回向量数据
}

// TaskCallback 任务回调信息
type TaskCallback struct {
	TaskID     string          `json:"task_id"`     // 任务ID
	DocumentID string          `json:"document_id"` // 文档ID
	Status     TaskStatus      `json:"status"`      // 任务状态
	Type       TaskType        `json:"type"`        // 任务类型
	Result     json.RawMessage `json:"result"`      // 任务结果
	Error      string          `json:"error"`       // 错误信息
	Timestamp  time.Time       `json:"timestamp"`   // 回调时间戳
}
