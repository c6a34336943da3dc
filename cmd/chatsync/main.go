package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/cmd/chatsync/cmds"
	"github.com/go-go-golems/chatsync/pkg/config"
)

func main() {
	path, explicit := config.DefaultPath(), false
	if p := os.Getenv("CHATSYNC_CONFIG"); p != "" {
		path, explicit = p, true
	}
	rootCmd, err := cmds.NewRootCommand(path, explicit)
	cobra.CheckErr(err)
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}
