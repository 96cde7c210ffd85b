package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/graphrag-gateway/internal/gateway/app"
	"github.com/yungbote/graphrag-gateway/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		fmt.Printf("server exited: %v\n", err)
		os.Exit(1)
	}
}
