package main

import "github.com/loog-project/nmldiff/cmd"

func main() {
	cmd.Execute()
}
