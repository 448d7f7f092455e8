// Package cmdutil holds the CLI glue shared by cmd/alice, cmd/bob,
// cmd/chatserver and cmd/router: flag parsing, logger construction, the
// terminal/graphical UI selection rule, signal-triggered graceful
// shutdown, and the exit-code convention from spec §6 (0 on orderly
// shutdown, non-zero on fatal transport error).
package cmdutil

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	xterm "golang.org/x/term"

	"github.com/AndreKoraleski/Mini-Net/internal/addr"
	"github.com/AndreKoraleski/Mini-Net/internal/chat"
	"github.com/AndreKoraleski/Mini-Net/internal/node"
	"github.com/AndreKoraleski/Mini-Net/internal/transport"
	"github.com/AndreKoraleski/Mini-Net/internal/ui/gui"
	termui "github.com/AndreKoraleski/Mini-Net/internal/ui/term"
	"github.com/AndreKoraleski/Mini-Net/internal/wire"
)

// channelFlags parses the noisy-substrate tuning knobs common to every
// entry point. They default to a perfect channel; scenario 4 in spec §8
// ("raise loss probability to 0.5") is reproduced by running with
// -loss=0.5.
func channelFlags(fs *flag.FlagSet) func() wire.Params {
	loss := fs.Float64("loss", 0, "probability a sent frame is dropped")
	corrupt := fs.Float64("corrupt", 0, "probability a sent frame is bit-flipped")
	delay := fs.Duration("max-delay", 0, "maximum random send delay")
	return func() wire.Params {
		return wire.Params{LossProbability: *loss, CorruptProbability: *corrupt, MaxDelay: *delay}
	}
}

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// uiBinder is what cmdutil needs from a chat.UI implementation beyond the
// interface itself: term.Terminal and gui.Web both expose Bind and a
// blocking Run, but chat.UI alone (Deliver/SetStatus/SetRoster/PromptForFile)
// doesn't, since the application layer never calls either.
type uiBinder interface {
	chat.UI
	Run() error
}

// selectUI implements spec §4.5.2's rule: graphical if no interactive
// terminal is attached or -gui was passed, terminal otherwise.
func selectUI(name string, forceGUI bool, log *zap.SugaredLogger) (uiBinder, func(*chat.Client)) {
	interactive := xterm.IsTerminal(int(os.Stdin.Fd()))
	if forceGUI || !interactive {
		w := gui.New(name, "127.0.0.1:0", log)
		return w, w.Bind
	}
	t := termui.New(name, log)
	return t, t.Bind
}

// RunClient boots self's host stack, connects to server, and bridges the
// connection to a UI until shutdown or a fatal error. It returns a process
// exit code per spec §6.
func RunClient(self, server addr.NodeName) int {
	fs := flag.NewFlagSet(string(self), flag.ExitOnError)
	forceGUI := fs.Bool("gui", false, "force the graphical UI even when a terminal is attached")
	getParams := channelFlags(fs)
	fs.Parse(os.Args[1:]) //nolint:errcheck

	log := newLogger()
	defer log.Sync() //nolint:errcheck
	log = log.With("node", self, "instance", uuid.New())

	info := addr.Topology[self]
	h, err := node.BootHost(self, info.Addr.Port, getParams(), log)
	if err != nil {
		log.Errorw("boot failed", "err", err)
		return 1
	}

	serverInfo := addr.Topology[server]
	ui, bind := selectUI(string(self), *forceGUI, log)
	client := chat.NewClient(string(self), h.Transport, serverInfo.VIP, serverInfo.Addr.Port, ui, log)
	bind(client)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientErrCh := make(chan error, 1)
	go func() { clientErrCh <- client.Run() }()

	uiErrCh := make(chan error, 1)
	go func() { uiErrCh <- ui.Run() }()

	select {
	case <-ctx.Done():
		log.Infow("interrupt received, closing connection")
		client.Close()
	case err := <-clientErrCh:
		if err != nil && !errors.Is(err, transport.ErrEndOfStream) {
			log.Errorw("client stopped with error", "err", err)
			h.Close()
			return 1
		}
	case err := <-uiErrCh:
		if err != nil {
			log.Errorw("ui stopped with error", "err", err)
		}
		client.Close()
	}

	if err := h.Close(); err != nil {
		log.Warnw("transport close reported an error", "err", err)
	}
	return 0
}

// RunServer boots the server's host stack, runs the chat server, and waits
// for an interrupt to trigger the graceful drain-then-shutdown path.
func RunServer() int {
	fs := flag.NewFlagSet("chatserver", flag.ExitOnError)
	getParams := channelFlags(fs)
	fs.Parse(os.Args[1:]) //nolint:errcheck

	log := newLogger()
	defer log.Sync() //nolint:errcheck
	log = log.With("node", addr.Server, "instance", uuid.New())

	info := addr.Topology[addr.Server]
	h, err := node.BootHost(addr.Server, info.Addr.Port, getParams(), log)
	if err != nil {
		log.Errorw("boot failed", "err", err)
		return 1
	}

	srv := chat.NewServer(h.Transport, log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- srv.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Infow("interrupt received, draining peers before shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("shutdown reported an error", "err", err)
			return 1
		}
	case err := <-runErrCh:
		if err != nil {
			log.Errorw("accept loop stopped with error", "err", err)
			h.Close()
			return 1
		}
	}
	return 0
}

// RunRouter boots the router's stack and forwards packets until an
// interrupt arrives.
func RunRouter() int {
	fs := flag.NewFlagSet("router", flag.ExitOnError)
	getParams := channelFlags(fs)
	fs.Parse(os.Args[1:]) //nolint:errcheck

	log := newLogger()
	defer log.Sync() //nolint:errcheck
	log = log.With("node", addr.Router, "instance", uuid.New())

	r, err := node.BootRouter(getParams(), log)
	if err != nil {
		log.Errorw("boot failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- r.Run() }()

	select {
	case <-ctx.Done():
		log.Infow("interrupt received, shutting down")
	case err := <-runErrCh:
		if err != nil {
			log.Errorw("router stopped with error", "err", err)
			r.Close()
			return 1
		}
	}
	if err := r.Close(); err != nil {
		log.Warnw("router close reported an error", "err", err)
	}
	return 0
}
