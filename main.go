package main

import "github.com/nvr-ai/tumorclassifier/cmd"

func main() {
	cmd.Execute()
}
