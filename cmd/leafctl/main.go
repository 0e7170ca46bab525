package main

import "github.com/bryanwahyu/leaflens/cmd/leafctl/cmd"

func main() {
	cmd.Execute()
}
