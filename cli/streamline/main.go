package main

import (
	"os"

	streamlinecmder "github.com/papercomputeco/streamline/cmd/streamline"
)

func main() {
	cmd := streamlinecmder.NewStreamlineCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
