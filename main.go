// The main package for the delver executable.
package main

import (
	"github.com/delverbot/delver/cmd"
)

func main() {
	cmd.Execute()
}
