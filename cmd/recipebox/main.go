package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/recipebox/recipebox/cmd/recipebox/commands"
	"github.com/recipebox/recipebox/logger"
	"github.com/recipebox/recipebox/version"
)

func main() {
	root := commands.NewRootCmd()
	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version.Get().Version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
	logger.Cleanup()
	if err != nil {
		os.Exit(1)
	}
}
