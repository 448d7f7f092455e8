// Command chatserver runs the chat server end-host: an accept loop that
// registers each connecting peer, relays text and file messages between
// named peers, and drains every peer's connection on interrupt before
// exiting.
package main

import (
	"os"

	"github.com/AndreKoraleski/Mini-Net/internal/cmdutil"
)

func main() {
	os.Exit(cmdutil.RunServer())
}
