// Command ammlab deploys a token pair and a constant-product pool, funds
// the pool and runs a swap loop against it.
package main

import (
	"os"

	"amm-lab/cmd/ammlab/commands"
)

func main() {
	os.Exit(commands.Execute())
}
