package main

import (
	"os"

	"github.com/raine/telegram-fastkale-bot/cmd/fastkale-harness/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
