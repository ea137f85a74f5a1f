package taskqueue

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockQueue 基于testify/mock的Queue接口模拟实现，用于测试
type MockQueue struct {
	mock.Mock
}

// EXPECT 返回期望设置器
func (m *MockQueue) EXPECT() *MockQueueExpecter {
	return &MockQueueExpecter{mock: &m.Mock}
}

// MockQueueExpecter 用于以类型无关的方式设置调用期望
type MockQueueExpecter struct {
	mock *mock.Mock
}

func (e *MockQueueExpecter) Enqueue(ctx, taskType, documentID, payload interface{}) *mock.Call {
	return e.mock.On("Enqueue", ctx, taskType, documentID, payload)
}

func (e *MockQueueExpecter) EnqueueAt(ctx, taskType, documentID, payload, processAt interface{}) *mock.Call {
	return e.mock.On("EnqueueAt", ctx, taskType, documentID, payload, processAt)
}

func (e *MockQueueExpecter) EnqueueIn(ctx, taskType, documentID, payload, delay interface{}) *mock.Call {
	return e.mock.On("EnqueueIn", ctx, taskType, documentID, payload, delay)
}

func (e *MockQueueExpecter) GetTask(ctx, taskID interface{}) *mock.Call {
	return e.mock.On("GetTask", ctx, taskID)
}

func (e *MockQueueExpecter) GetTasksByDocument(ctx, documentID interface{}) *mock.Call {
	return e.mock.On("GetTasksByDocument", ctx, documentID)
}

func (e *MockQueueExpecter) WaitForTask(ctx, taskID, timeout interface{}) *mock.Call {
	return e.mock.On("WaitForTask", ctx, taskID, timeout)
}

func (e *MockQueueExpecter) DeleteTask(ctx, taskID interface{}) *mock.Call {
	return e.mock.On("DeleteTask", ctx, taskID)
}

func (e *MockQueueExpecter) UpdateTaskStatus(ctx, taskID, status, result, errorMsg interface{}) *mock.Call {
	return e.mock.On("UpdateTaskStatus", ctx, taskID, status, result, errorMsg)
}

func (e *MockQueueExpecter) NotifyTaskUpdate(ctx, taskID interface{}) *mock.Call {
	return e.mock.On("NotifyTaskUpdate", ctx, taskID)
}

func (e *MockQueueExpecter) Close() *mock.Call {
	return e.mock.On("Close")
}

func (m *MockQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) EnqueueAt(ctx context.Context, taskType TaskType, documentID string, payload interface{}, processAt time.Time) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload, processAt)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	args := m.Called(ctx, taskType, documentID, payload, delay)
	return args.String(0), args.Error(1)
}

func (m *MockQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	args := m.Called(ctx, taskID)
	var task *Task
	if args.Get(0) != nil {
		task = args.Get(0).(*Task)
	}
	return task, args.Error(1)
}

func (m *MockQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	args := m.Called(ctx, documentID)
	var tasks []*Task
	if args.Get(0) != nil {
		tasks = args.Get(0).([]*Task)
	}
	return tasks, args.Error(1)
}

func (m *MockQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	args := m.Called(ctx, taskID, timeout)
	var task *Task
	if args.Get(0) != nil {
		task = args.Get(0).(*Task)
	}
	return task, args.Error(1)
}

func (m *MockQueue) DeleteTask(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error {
	args := m.Called(ctx, taskID, status, result, errorMsg)
	return args.Error(0)
}

func (m *MockQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockQueue) Close() error {
	args := m.Called()
	return args.Error(0)
}
