// Package mcp はAIアシスタント向けのツール呼び出しプロトコルを
// 標準入出力上のJSON-RPC 2.0として実装する。
// 標準出力はプロトコル専用のため、ログはすべて標準エラー出力に書き込むこと。
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/nutrimcp/internal/model"
	"github.com/hitoshi/nutrimcp/internal/tool"
)

// プロトコルバージョンとサーバー情報
const (
	protocolVersion = "2024-11-05"
	serverName      = "nutrimcp"
	serverVersion   = "1.0.0"
)

// JSON-RPC 2.0のエラーコード
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// ToolService はMCPサーバーが必要とするツールサービスのインターフェース。
type ToolService interface {
	SearchFoods(ctx context.Context, params tool.SearchParams) (*model.Envelope, error)
	GetFoodNutrition(ctx context.Context, params tool.FoodDetailParams) (*model.Envelope, error)
	CompareFoods(ctx context.Context, params tool.CompareFoodsParams) (*model.Envelope, error)
	GetMultipleFoods(ctx context.Context, params tool.MultipleFoodsParams) (*model.Envelope, error)
	GetFoodCategories(ctx context.Context) (*model.Envelope, error)
}

// request はJSON-RPC 2.0のリクエスト。IDがnullまたは欠落の場合は通知。
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response はJSON-RPC 2.0のレスポンス。
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError はJSON-RPC 2.0のエラーオブジェクト。
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server は標準入出力上でJSON-RPC 2.0を処理するMCPサーバー。
type Server struct {
	service   ToolService
	logger    *slog.Logger
	sessionID string

	in  io.Reader
	out io.Writer
	// outMu は複数のレスポンス書き込みが混ざらないことを保証する
	outMu sync.Mutex
}

// NewServer はMCPサーバーを生成する。
// inとoutには通常os.Stdinとos.Stdoutを渡す。
func NewServer(service ToolService, logger *slog.Logger, in io.Reader, out io.Writer) *Server {
	return &Server{
		service:   service,
		logger:    logger,
		sessionID: uuid.NewString(),
		in:        in,
		out:       out,
	}
}

// Run は入力ストリームが閉じられるかコンテキストが取り消されるまで
// リクエストを1行ずつ処理する。1行につき1つのJSON-RPCメッセージを想定する。
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCPサーバーを開始します",
		slog.String("session_id", s.sessionID),
		slog.String("protocol_version", protocolVersion),
	)

	scanner := bufio.NewScanner(s.in)
	// 大きな比較結果にも対応できるようバッファを拡張する
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeError(nil, codeParseError, "JSONの解析に失敗しました")
			continue
		}

		s.dispatch(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("入力ストリームの読み取りに失敗しました: %w", err)
	}

	s.logger.Info("MCPサーバーを終了します", slog.String("session_id", s.sessionID))
	return nil
}

// dispatch はメソッド名に応じてリクエストを処理する。
func (s *Server) dispatch(ctx context.Context, req *request) {
	switch req.Method {
	case "initialize":
		s.writeResult(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		})

	case "notifications/initialized":
		// 通知にはレスポンスを返さない
		s.logger.Info("クライアントの初期化が完了しました", slog.String("session_id", s.sessionID))

	case "ping":
		s.writeResult(req.ID, map[string]any{})

	case "tools/list":
		s.writeResult(req.ID, map[string]any{"tools": toolDescriptors()})

	case "tools/call":
		s.handleToolCall(ctx, req)

	default:
		// 通知の場合はエラーも返さない
		if len(req.ID) == 0 {
			return
		}
		s.writeError(req.ID, codeMethodNotFound, fmt.Sprintf("未知のメソッドです: %s", req.Method))
	}
}

// toolCallParams はtools/callのパラメータ。
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolCall はツール呼び出しをサービス層へ委譲する。
// 結果は封筒のJSONをテキストコンテンツとして返す。
// ツール実行の失敗はisError=trueのコンテンツとして表現し、
// JSON-RPCレベルのエラーはプロトコル違反にのみ使用する。
func (s *Server) handleToolCall(ctx context.Context, req *request) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(req.ID, codeInvalidParams, "tools/callのパラメータ解析に失敗しました")
		return
	}

	env, callErr := s.callTool(ctx, params)
	if env == nil {
		s.writeError(req.ID, codeMethodNotFound, fmt.Sprintf("未知のツールです: %s", params.Name))
		return
	}

	s.logger.Info("ツールを実行しました",
		slog.String("session_id", s.sessionID),
		slog.String("tool", params.Name),
		slog.Bool("success", callErr == nil),
	)

	text, err := json.Marshal(env)
	if err != nil {
		s.writeError(req.ID, codeInternalError, "レスポンスのシリアライズに失敗しました")
		return
	}

	s.writeResult(req.ID, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(text)},
		},
		"isError": callErr != nil,
	})
}

// callTool はツール名に応じてサービスのメソッドを呼び出す。
// 未知のツール名の場合はnilの封筒を返す。
func (s *Server) callTool(ctx context.Context, params toolCallParams) (*model.Envelope, error) {
	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch params.Name {
	case tool.ToolSearchFoods:
		var p tool.SearchParams
		if err := json.Unmarshal(args, &p); err != nil {
			return s.invalidArguments(tool.ToolSearchFoods)
		}
		return s.service.SearchFoods(ctx, p)

	case tool.ToolGetFoodNutrition:
		var p tool.FoodDetailParams
		if err := json.Unmarshal(args, &p); err != nil {
			return s.invalidArguments(tool.ToolGetFoodNutrition)
		}
		return s.service.GetFoodNutrition(ctx, p)

	case tool.ToolCompareFoods:
		var p tool.CompareFoodsParams
		if err := json.Unmarshal(args, &p); err != nil {
			return s.invalidArguments(tool.ToolCompareFoods)
		}
		return s.service.CompareFoods(ctx, p)

	case tool.ToolGetMultipleFoods:
		var p tool.MultipleFoodsParams
		if err := json.Unmarshal(args, &p); err != nil {
			return s.invalidArguments(tool.ToolGetMultipleFoods)
		}
		return s.service.GetMultipleFoods(ctx, p)

	case tool.ToolGetFoodCategories:
		return s.service.GetFoodCategories(ctx)

	default:
		return nil, nil
	}
}

// invalidArguments は引数解析失敗の失敗封筒を返す。
func (s *Server) invalidArguments(toolName string) (*model.Envelope, error) {
	apiErr := model.NewInvalidRequestError("ツール引数の解析に失敗しました")
	return model.NewErrorEnvelope(toolName, apiErr), apiErr
}

// toolDescriptors はtools/list用のツール定義を返す。
func toolDescriptors() []map[string]any {
	catalog := tool.Catalog()
	descriptors := make([]map[string]any, 0, len(catalog))
	for _, t := range catalog {
		descriptors = append(descriptors, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	return descriptors
}

// writeResult は成功レスポンスを書き込む。
func (s *Server) writeResult(id json.RawMessage, result any) {
	s.write(&response{JSONRPC: "2.0", ID: id, Result: result})
}

// writeError はエラーレスポンスを書き込む。
func (s *Server) writeError(id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.write(&response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

// write はレスポンスを1行のJSONとして出力する。
func (s *Server) write(resp *response) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	enc := json.NewEncoder(s.out)
	if err := enc.Encode(resp); err != nil {
		s.logger.Error("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}
