package main

import "github.com/smallbiznis/waiter/internal/cli"

func main() {
	cli.Execute()
}
