package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lunarhue/textqa/internal/cache"
	"github.com/lunarhue/textqa/internal/embedding"
	"github.com/lunarhue/textqa/internal/llm"
	"github.com/lunarhue/textqa/internal/vectordb"
)

// TestQAService 测试问答服务的基本功能
func TestQAService(t *testing.T) {
	// 设置测试环境
	qaService, cleanup := setupQATestEnv(t)
	defer cleanup()

	// 测试基本问答功能
	ctx := context.Background()
	question := "什么是向量数据库？"
	answer, docs, err := qaService.Answer(ctx, question)
	require.NoError(t, err)
	assert.NotEmpty(t, answer, "Should return a non-empty answer")
	assert.NotEmpty(t, docs, "Should return source documents")

	// 测试缓存功能
	cachedAnswer, cachedDocs, err := qaService.Answer(ctx, question)
	require.NoError(t, err)
	assert.Equal(t, answer, cachedAnswer, "Cached answer should match")
	assert.Equal(t, len(docs), len(cachedDocs), "Cached document count should match")
}

// TestQAServiceWithFile 测试针对特定文件的问答
func TestQAServiceWithFile(t *testing.T) {
	// 设置测试环境
	qaService, cleanup := setupQATestEnv(t)
	defer cleanup()

	// 测试特定文件问答
	ctx := context.Background()
	fileID := "test-file-1" // 与setupQATestEnv中创建的文件ID保持一致
	question := "向量数据库的优点是什么？"

	answer, docs, err := qaService.AnswerWithFile(ctx, question, fileID)
	require.NoError(t, err)
	assert.NotEmpty(t, answer, "Should return a non-empty answer")

	// 检查返回的文档是否属于指定文件
	for _, doc := range docs {
		assert.Equal(t, fileID, doc.FileID, "Document should be from the specified file")
	}
}

// TestQAServiceWithMetadata 测试带元数据过滤的问答
func TestQAServiceWithMetadata(t *testing.T) {
	// 设置测试环境
	qaService, cleanup := setupQATestEnv(t)
	defer cleanup()

	// 测试元数据过滤问答
	ctx := context.Background()
	metadata := map[string]interface{}{
		"category": "database",
	}
	question := "向量数据库有哪些？"

	answer, docs, err := qaService.AnswerWithMetadata(ctx, question, metadata)
	require.NoError(t, err)
	assert.NotEmpty(t, answer, "Should return a non-empty answer")

	// 检查返回的文档是否包含指定元数据
	for _, doc := range docs {
		category, ok := doc.Metadata["category"]
		assert.True(t, ok, "Document should have category metadata")
		assert.Equal(t, "database", category, "Document should have correct category")
	}
}

// TestQAServiceCacheOperations 测试缓存操作
func TestQAServiceCacheOperations(t *testing.T) {
	// 设置测试环境，使用内存缓存
	memoryCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	qaService, cleanup := setupQATestEnvWithCache(t, memoryCache)
	defer cleanup()

	ctx := context.Background()

	// 生成一个唯一的问题，避免与其他测试干扰
	question := "缓存测试: 什么是RAG？" + time.Now().Format(time.RFC3339Nano)

	// 第一次问题应该不命中缓存
	startTime := time.Now()
	firstAnswer, _, err := qaService.Answer(ctx, question)
	firstQueryTime := time.Since(startTime)
	require.NoError(t, err)
	assert.NotEmpty(t, firstAnswer)

	// 第二次问题应该命中缓存，速度更快
	startTime = time.Now()
	secondAnswer, _, err := qaService.Answer(ctx, question)
	secondQueryTime := time.Since(startTime)
	require.NoError(t, err)
	assert.Equal(t, firstAnswer, secondAnswer, "Cached answer should be the same")

	// 这个断言在某些环境下可能不稳定，但在大多数情况下缓存查询应该显著更快
	t.Logf("First query took %v, second (cached) query took %v", firstQueryTime, secondQueryTime)

	// 清除缓存
	err = qaService.ClearCache()
	require.NoError(t, err)

	// 清除后的查询应该不命中缓存
	startTime = time.Now()
	thirdAnswer, _, err := qaService.Answer(ctx, question)
	thirdQueryTime := time.Since(startTime)
	require.NoError(t, err)
	assert.Equal(t, firstAnswer, thirdAnswer, "Answer content should be consistent")

	// 同样，这个断言在某些环境下可能不稳定
	t.Logf("Second query took %v, third query (after cache clear) took %v", secondQueryTime, thirdQueryTime)
}

// TestQATongyiIntegration 测试与通义千问API的集成
func TestQATongyiIntegration(t *testing.T) {
	// 检查是否有API密钥可用
	apiKey := os.Getenv("TONGYI_API_KEY")
	if apiKey == "" {
		t.Skip("TONGYI_API_KEY environment variable not set, skipping real API test")
	}

	// 设置实际的大语言模型和嵌入模型
	embeddingClient, err := embedding.NewClient("tongyi",
		embedding.WithAPIKey(apiKey),
		embedding.WithModel("text-embedding-v1"),
	)
	require.NoError(t, err)

	llmClient, err := llm.NewClient("tongyi",
		llm.WithAPIKey(apiKey),
		llm.WithModel(llm.ModelQwenTurbo),
	)
	require.NoError(t, err)

	// 设置其他组件
	vectorDBConfig := vectordb.Config{
		Type:      "memory",
		Dimension: 1536, // 通义嵌入默认维度
	}
	vectorDB, err := vectordb.NewRepository(vectorDBConfig)
	require.NoError(t, err)

	// 创建测试文档
	createTestDocuments(t, embeddingClient, vectorDB)

	// 创建RAG服务
	ragService := llm.NewRAG(llmClient)

	// 创建缓存
	memoryCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	// 创建问答服务
	qaService := NewQAService(
		embeddingClient,
		vectorDB,
		llmClient,
		ragService,
		memoryCache,
	)

	// 测试简单问题
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	question := "什么是向量数据库？"
	answer, _, err := qaService.Answer(ctx, question)
	if err != nil {
		t.Logf("API error: %v", err)
		t.Skip("Skipping test due to API error")
	}

	// 只检查是否返回了回答，不检查具体内容
	assert.NotEmpty(t, answer, "Should return a non-empty answer from real API")
}

// setupQATestEnv 设置测试环境，返回QA服务和清理函数
func setupQATestEnv(t *testing.T) (*QAService, func()) {
	// 创建内存缓存
	memoryCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	return setupQATestEnvWithCache(t, memoryCache)
}

// setupQATestEnvWithCache 使用指定缓存设置测试环境
func setupQATestEnvWithCache(t *testing.T, cacheInstance cache.Cache) (*QAService, func()) {
	// 创建向量数据库
	vectorDBConfig := vectordb.Config{
		Type:      "memory",
		Dimension: 4, // 使用小维度简化测试
	}
	vectorDB, err := vectordb.NewRepository(vectorDBConfig)
	require.NoError(t, err)

	// 创建嵌入客户端 - 使用Mock
	embeddingClient := embedding.NewMockClient(t)
	embeddingClient.On("Name").Maybe().Return("mock-embedding")
	embeddingClient.On("Embed", mock.Anything, mock.Anything).Maybe().Return(
		[]float32{0.1, 0.2, 0.3, 0.4}, nil,
	)
	embeddingClient.On("EmbedBatch", mock.Anything, mock.Anything).Maybe().Return(
		[][]float32{{0.1, 0.2, 0.3, 0.4}}, nil,
	)

	// 创建LLM客户端 - 使用Mock
	llmClient := llm.NewMockClient(t)
	llmClient.On("Name").Maybe().Return("mock-llm")
	llmClient.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe().Return(
		&llm.Response{
			Text:       "这是测试回答",
			TokenCount: 10,
			ModelName:  "mock-model",
			FinishTime: time.Now(),
		},
		nil,
	)

	// 创建RAG服务
	ragService := llm.NewRAG(llmClient)

	// 创建测试数据
	createTestDocuments(t, embeddingClient, vectorDB)

	// 创建问答服务
	qaService := NewQAService(
		embeddingClient,
		vectorDB,
		llmClient,
		ragService,
		cacheInstance,
		WithMinScore(0.0),
	)

	// 返回清理函数
	cleanup := func() {
	}

	return qaService, cleanup
}

// createTestDocuments 创建测试文档
func createTestDocuments(t *testing.T, embeddingClient embedding.Client, vectorDB vectordb.Repository) {
	ctx := context.Background()

	// 创建测试文档
	docs := []struct {
		ID       string
		FileID   string
		Position int
		Text     string
		Metadata map[string]interface{}
	}{
		{
			ID:       "doc1",
			FileID:   "test-file-1",
			Position: 0,
			Text:     "向量数据库是一种专门用于存储和检索向量数据的数据库系统。",
			Metadata: map[string]interface{}{"category": "database"},
		},
		{
			ID:       "doc2",
			FileID:   "test-file-1",
			Position: 1,
			Text:     "向量数据库的主要优点是能够进行高效的相似度搜索。",
			Metadata: map[string]interface{}{"category": "database"},
		},
		{
			ID:       "doc3",
			FileID:   "test-file-2",
			Position: 0,
			Text:     "RAG（Retrieval-Augmented Generation）是一种结合检索和生成的AI技术。",
			Metadata: map[string]interface{}{"category": "ai"},
		},
	}

	// 添加到向量数据库
	for _, doc := range docs {
		// 获取文本嵌入
		vector, err := embeddingClient.Embed(ctx, doc.Text)
		require.NoError(t, err)

		// 创建向量文档
		vectorDoc := vectordb.Document{
			ID:       doc.ID,
			FileID:   doc.FileID,
			FileName: "test.txt",
			Position: doc.Position,
			Text:     doc.Text,
			Vector:   vector,
			Metadata: doc.Metadata,
		}

		// 添加到向量数据库
		err = vectorDB.Add(vectorDoc)
		require.NoError(t, err)
	}
}
