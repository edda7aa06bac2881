package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultMemoryWindow 会话窗口默认容量（轮数）。
const DefaultMemoryWindow = 5

// ConversationTurn 一轮问答。
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConversationMemory 有界 FIFO 会话窗口。
// 写入只发生在一次完整生成之后，读取发生在改写之前。
type ConversationMemory interface {
	// Read 返回序列化历史，最旧在前，无历史返回空串。
	Read(ctx context.Context) (string, error)
	// Write 追加一轮问答，超出容量时淘汰最旧一轮。
	Write(ctx context.Context, question, answer string) error
	Clear(ctx context.Context) error
}

// serializeTurns 历史的统一文本形态，提示词直接拼接。
func serializeTurns(turns []ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, fmt.Sprintf("question: %s\nanswer: %s", t.Question, t.Answer))
	}
	return strings.Join(parts, "\n")
}

// WindowMemory 进程内实现，互斥锁保护，进程重启即丢失。
type WindowMemory struct {
	mu       sync.Mutex
	turns    []ConversationTurn
	capacity int
}

// NewWindowMemory 创建窗口。capacity <= 0 时取默认容量。
func NewWindowMemory(capacity int) *WindowMemory {
	if capacity <= 0 {
		capacity = DefaultMemoryWindow
	}
	return &WindowMemory{capacity: capacity}
}

func (m *WindowMemory) Read(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return serializeTurns(m.turns), nil
}

func (m *WindowMemory) Write(ctx context.Context, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, ConversationTurn{Question: question, Answer: answer})
	if len(m.turns) > m.capacity {
		m.turns = m.turns[len(m.turns)-m.capacity:]
	}
	return nil
}

func (m *WindowMemory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}

// Turns 返回当前窗口快照，测试与诊断接口。
func (m *WindowMemory) Turns() []ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConversationTurn, len(m.turns))
	copy(out, m.turns)
	return out
}
