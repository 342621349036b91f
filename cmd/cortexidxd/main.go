// Command cortexidxd runs the cortexidx background-indexing CLI.
package main

import "github.com/mvp-joe/cortexidx/internal/cli"

func main() {
	cli.Execute()
}
