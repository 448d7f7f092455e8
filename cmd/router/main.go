// Command router runs the star topology's single router node: it forwards
// packets between the three end-hosts, decrementing TTL and dropping
// anything that has expired, and never surfaces a packet upward.
package main

import (
	"os"

	"github.com/AndreKoraleski/Mini-Net/internal/cmdutil"
)

func main() {
	os.Exit(cmdutil.RunRouter())
}
