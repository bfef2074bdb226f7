package main

import (
	"os"

	"github.com/tablemesh/tablemesh-engine/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
