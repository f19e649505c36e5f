// The main package for the dubbadge executable.
package main

import (
	"github.com/JakeFAU/dubbadge/cmd"
)

func main() {
	cmd.Execute()
}
