package main

import (
	"os"

	"github.com/krishnasharma4415/QueueCTL/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
