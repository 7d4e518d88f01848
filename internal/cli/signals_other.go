//go:build !unix

package cli

import "os"

var shutdownSignals = []os.Signal{os.Interrupt}
