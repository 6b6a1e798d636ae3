package model

import "time"

// Envelope はすべてのツール呼び出しに対する統一レスポンスフォーマット。
// HTTPとMCPの両トランスポートで共通に使用する。
// 失敗もこの形式のデータとして返し、例外をトランスポート層に漏らさない。
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewSuccessEnvelope は成功レスポンスの封筒を生成する。
func NewSuccessEnvelope(tool string, data any, message string) *Envelope {
	return &Envelope{
		Success:   true,
		Data:      data,
		Tool:      tool,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewErrorEnvelope は失敗レスポンスの封筒を生成する。
func NewErrorEnvelope(tool string, err error) *Envelope {
	return &Envelope{
		Success:   false,
		Error:     err.Error(),
		Tool:      tool,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ToolInfo は公開するツールの名前・説明・入力スキーマ。
// GET /tools とMCPのtools/listの両方で使用する。
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
