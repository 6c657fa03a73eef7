package main

import "github.com/OpenTraceLab/kisync/cmd/kisync/cmd"

func main() {
	cmd.Execute()
}
