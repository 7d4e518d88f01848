// Command speedlog periodically measures internet speed and logs the
// results.
package main

import "speedlog/internal/cli"

func main() {
	cli.Execute()
}
