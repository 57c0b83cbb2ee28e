package main

import (
	"github.com/blackbear10000/price-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
