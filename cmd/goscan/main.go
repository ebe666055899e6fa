package main

import "github.com/MeKo-Tech/goscan/cmd/goscan/cmd"

func main() {
	cmd.Execute()
}
