package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTP APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMCP は標準入出力上のMCPサーバーモードで起動することを示す。
	CommandMCP Command = "mcp"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "mcp":
		return CommandMCP
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
