package main

import (
	"os"

	"github.com/ClipFinance/approval-lib/cmd/approvalctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
