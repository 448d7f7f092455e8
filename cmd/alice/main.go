// Command alice runs the Alice end-host: connects to the chat server over
// the simulated five-layer stack and bridges the connection to either a
// terminal or a browser-based UI.
package main

import (
	"os"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/cmdutil"
)

func main() {
	os.Exit(cmdutil.RunClient(addr.Alice, addr.Server))
}
