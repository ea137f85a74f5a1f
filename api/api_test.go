package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunarhue/textqa/api/handler"
	"github.com/lunarhue/textqa/api/model"
	"github.com/lunarhue/textqa/internal/cache"
	"github.com/lunarhue/textqa/internal/database"
	"github.com/lunarhue/textqa/internal/embedding"
	"github.com/lunarhue/textqa/internal/llm"
	"github.com/lunarhue/textqa/internal/models"
	"github.com/lunarhue/textqa/internal/segment"
	"github.com/lunarhue/textqa/internal/services"
	"github.com/lunarhue/textqa/internal/vectordb"
	"github.com/lunarhue/textqa/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// 测试环境配置
type testEnv struct {
	Router          *gin.Engine
	Storage         storage.Storage
	VectorDB        vectordb.Repository
	EmbeddingClient *embedding.MockClient
	LLMClient       *llm.MockClient
	Cache           cache.Cache
	DocumentService *services.DocumentService
	QAService       *services.QAService
}

// testQueryVector 返回测试用的单位向量，保证检索相似度为1
func testQueryVector(dimension int) []float32 {
	vec := make([]float32, dimension)
	vec[0] = 1.0
	return vec
}

// setupAPITestDB 创建测试数据库并替换全局连接
func setupAPITestDB(t *testing.T, tempDir string) {
	dbPath := filepath.Join(tempDir, "api_test.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err, "Failed to connect to test database")

	err = db.AutoMigrate(&models.Document{}, &models.DocumentSegment{})
	require.NoError(t, err, "Failed to run migrations")

	originalDB := database.DB
	database.DB = db

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		database.DB = originalDB
	})
}

// 创建测试环境
func setupTestEnv(t *testing.T) *testEnv {
	// 设置测试模式
	gin.SetMode(gin.TestMode)

	// 创建临时目录
	tempDir, err := os.MkdirTemp("", "textqa_test_*")
	require.NoError(t, err)

	// 临时目录将在测试完成后自动清理
	t.Cleanup(func() {
		os.RemoveAll(tempDir)
	})

	// 创建测试数据库
	setupAPITestDB(t, tempDir)

	// 创建本地存储
	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{
		Path: tempDir,
	})
	require.NoError(t, err)

	// 创建内存向量数据库
	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    1536,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)

	// 创建Mock嵌入客户端，所有文本都映射到同一个单位向量
	mockEmbedding := embedding.NewMockClient(t)
	mockEmbedding.EXPECT().Name().Return("mock-embedding").Maybe()
	mockEmbedding.EXPECT().Embed(mock.Anything, mock.Anything).Return(
		testQueryVector(1536), nil,
	).Maybe()
	mockEmbedding.EXPECT().EmbedBatch(mock.Anything, mock.Anything).RunAndReturn(
		func(_ context.Context, texts []string) ([][]float32, error) {
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = testQueryVector(1536)
			}
			return result, nil
		},
	).Maybe()

	// 创建Mock LLM客户端
	mockLLM := llm.NewMockClient(t)
	mockLLM.EXPECT().Name().Return("mock-llm").Maybe()
	mockLLM.EXPECT().Generate(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		&llm.Response{
			Text:       "这是一个模拟回答",
			TokenCount: 10,
			ModelName:  "mock-model",
			FinishTime: time.Now(),
		},
		nil,
	).Maybe()

	// 创建内存缓存
	cacheService, err := cache.NewCache(cache.Config{
		Type:            "memory",
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)

	// 创建文本分段器
	segmenter := segment.NewSegmenter(segment.DefaultConfig())

	// 创建RAG服务
	ragService := llm.NewRAG(mockLLM,
		llm.WithRAGMaxTokens(1024),
		llm.WithRAGTemperature(0.7),
	)

	// 创建文档服务
	documentService := services.NewDocumentService(
		fileStorage,
		nil, // 使用ParserFactory
		segmenter,
		mockEmbedding,
		vectorDB,
		services.WithBatchSize(5),
	)

	// 创建问答服务
	qaService := services.NewQAService(
		mockEmbedding,
		vectorDB,
		mockLLM,
		ragService,
		cacheService,
	)

	// 创建API处理器
	docHandler := handler.NewDocumentHandler(documentService, fileStorage)
	qaHandler := handler.NewQAHandler(qaService)

	// 设置路由
	router := SetupRouter(docHandler, qaHandler, nil)

	return &testEnv{
		Router:          router,
		Storage:         fileStorage,
		VectorDB:        vectorDB,
		EmbeddingClient: mockEmbedding,
		LLMClient:       mockLLM,
		Cache:           cacheService,
		DocumentService: documentService,
		QAService:       qaService,
	}
}

// seedVectorDocument 向向量数据库写入一条与查询向量完全匹配的文档
func seedVectorDocument(t *testing.T, env *testEnv, fileID string, text string) {
	err := env.VectorDB.Add(vectordb.Document{
		ID:        fileID + "_0",
		FileID:    fileID,
		FileName:  "test.txt",
		Position:  0,
		Text:      text,
		Vector:    testQueryVector(1536),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

// 创建测试文件
func createTestFile(t *testing.T, filename string, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

// TestDocumentUpload 测试文档上传API
func TestDocumentUpload(t *testing.T) {
	env := setupTestEnv(t)

	// 创建测试文本文件
	testFile := createTestFile(t, "test.txt", "这是一个用于测试的文档段落内容。")

	// 创建multipart请求
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "test.txt")
	require.NoError(t, err)

	file, err := os.Open(testFile)
	require.NoError(t, err)
	defer file.Close()

	_, err = io.Copy(part, file)
	require.NoError(t, err)
	writer.Close()

	// 创建请求
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// 执行请求
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	// 验证响应
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	// 检查响应中是否包含fileID
	uploadResp, ok := resp.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.NotEmpty(t, uploadResp["file_id"])
	assert.Equal(t, "processing", uploadResp["status"])
}

// TestDocumentStatus 测试文档状态查询API
func TestDocumentStatus(t *testing.T) {
	env := setupTestEnv(t)

	// 先上传一个文档
	testFile := createTestFile(t, "test.txt", "这是一个用于测试的文档段落内容。")
	file, err := os.Open(testFile)
	require.NoError(t, err)
	defer file.Close()

	fileInfo, err := env.Storage.Save(file, "test.txt")
	require.NoError(t, err)

	// 查询状态
	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+fileInfo.ID+"/status", nil)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	// 验证响应 (状态码可能是200或404，取决于文档是否已入库)
	t.Logf("Status response: %s", w.Body.String())
}

// TestDocumentDelete 测试文档删除API
func TestDocumentDelete(t *testing.T) {
	env := setupTestEnv(t)

	// 先上传一个文档
	testFile := createTestFile(t, "test.txt", "这是一个用于测试的文档段落内容。")
	file, err := os.Open(testFile)
	require.NoError(t, err)
	defer file.Close()

	fileInfo, err := env.Storage.Save(file, "test.txt")
	require.NoError(t, err)

	// 删除文档
	req := httptest.NewRequest(http.MethodDelete, "/api/documents/"+fileInfo.ID, nil)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	// 验证响应
	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.Response
	err = json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Code)

	// 验证删除成功
	deleteResp, ok := resp.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, true, deleteResp["success"])
}

// TestHealthCheck 测试健康检查API
func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t)

	// 请求健康检查
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	// 验证响应
	assert.Equal(t, http.StatusOK, w.Code)
}
