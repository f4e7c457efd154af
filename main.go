package main

import (
	"github.com/cloudtracker/cloudtracker/cmd"
)

func main() {
	cmd.Execute()
}
