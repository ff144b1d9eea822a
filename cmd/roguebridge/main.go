package main

import (
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/cmd"
)

func main() {
	cmd.Execute()
}
