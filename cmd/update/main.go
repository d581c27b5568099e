package main

import "github.com/jgarman/disk-updater/internal/cli"

func main() {
	cli.Execute()
}
