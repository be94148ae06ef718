package main

import "ohlc-forecast/internal/cli"

func main() {
	cli.Execute()
}
