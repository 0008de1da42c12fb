package main

import "github.com/haplink/haplink/cmd/haplink/cmd"

func main() {
	cmd.Execute()
}
