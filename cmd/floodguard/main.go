package main

import "github.com/vietddude/floodguard/internal/cli"

func main() {
	cli.Execute()
}
