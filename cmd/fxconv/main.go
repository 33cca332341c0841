package main

import "fx-converter/internal/cli"

func main() {
	cli.Execute()
}
