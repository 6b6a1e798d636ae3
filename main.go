package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hitoshi/nutrimcp/internal/app"
)

func main() {
	args := os.Args[1:]

	// MCPモードでは標準出力がプロトコル専用のため、ログは標準エラー出力へ
	out := io.Writer(os.Stdout)
	if app.ParseCommand(args) == app.CommandMCP {
		out = os.Stderr
	}

	if err := app.Run(out, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
