package main

import "github.com/MeKo-Tech/caffebridge/cmd/caffebridge/cmd"

func main() {
	cmd.Execute()
}
