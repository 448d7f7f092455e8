package cmdutil

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AndreKoraleski/Mini-Net/internal/ui/gui"
)

func TestChannelFlagsDefaultToAPerfectChannel(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	getParams := channelFlags(fs)
	require.NoError(t, fs.Parse(nil))

	p := getParams()
	require.Zero(t, p.LossProbability)
	require.Zero(t, p.CorruptProbability)
	require.Zero(t, p.MaxDelay)
}

func TestChannelFlagsParseOverrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	getParams := channelFlags(fs)
	require.NoError(t, fs.Parse([]string{"-loss=0.5", "-corrupt=0.1", "-max-delay=20ms"}))

	p := getParams()
	require.Equal(t, 0.5, p.LossProbability)
	require.Equal(t, 0.1, p.CorruptProbability)
	require.Equal(t, 20*time.Millisecond, p.MaxDelay)
}

// TestSelectUIPicksGraphicalUnderTest relies on `go test` never attaching
// an interactive terminal to stdin, so selectUI must pick the graphical UI
// even with forceGUI=false, exercising the "no interactive terminal"
// half of spec §4.5.2's selection rule.
func TestSelectUIPicksGraphicalUnderTest(t *testing.T) {
	log := zap.NewNop().Sugar()
	ui, bind := selectUI("alice", false, log)
	require.NotNil(t, bind)
	_, ok := ui.(*gui.Web)
	require.True(t, ok)
}

func TestSelectUIForceGUI(t *testing.T) {
	log := zap.NewNop().Sugar()
	ui, _ := selectUI("alice", true, log)
	_, ok := ui.(*gui.Web)
	require.True(t, ok)
}
