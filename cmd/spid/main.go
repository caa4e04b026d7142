// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command spid runs the bus broker service on the in-process kernel and
// emulated bus controllers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/spi"
	"code.hybscloud.com/spi/client"
	"code.hybscloud.com/spi/emu"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// flashID is the identification the emulated flash on device 0 reports.
var flashID = [3]byte{0xC2, 0x20, 0x17}

const cmdReadID = 0x9F

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := Run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Run parses args, starts the service and blocks until it stops.
func Run(ctx context.Context, args []string, output io.Writer) error {
	flags := flag.NewFlagSet("spid", flag.ContinueOnError)
	flags.SetOutput(output)
	debug := flags.Bool("debug", false, "Enable debug logging")
	lgr2 := flags.Bool("lgr2", false, "Use the placement for hardware with the extra core")
	maxSessions := flags.Int("max-sessions", 1, "Session limit per published name")
	selftest := flags.Bool("selftest", false, "Read the flash id through the service, then exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if *debug {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := logConfig.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := spi.DefaultConfig(*lgr2)
	cfg.MaxSessions = *maxSessions

	board := emu.NewBoard()
	board.Attach(0, &emu.Recorder{Respond: func(n int, _ byte) byte {
		if n >= 1 && n <= len(flashID) {
			return flashID[n-1]
		}
		return 0xFF
	}})

	k := emu.NewKernel(emu.WithLogger(logger.Named("kernel")))
	svc, err := spi.NewService(k, board.Hardware(), cfg, logger.Named("spi"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if *selftest {
		g.Go(func() error {
			defer k.Notify(spi.NotificationTerminate)
			id, err := readFlashID(gctx, k, cfg.Endpoints[0].Name)
			if err != nil {
				return fmt.Errorf("selftest: %w", err)
			}
			logger.Info("selftest passed", zap.Binary("id", id))
			fmt.Fprintf(output, "flash id: % x\n", id)
			return nil
		})
	}
	return g.Wait()
}

// readFlashID connects to name once it is published and reads the id of
// device 0.
func readFlashID(ctx context.Context, k *emu.Kernel, name string) ([]byte, error) {
	var bo iox.Backoff
	for !k.Registered(name) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bo.Wait()
	}
	s, err := client.Dial(k, name)
	if err != nil {
		return nil, err
	}
	protocol := client.InitRateThen(0, 0,
		client.ReadBind(0, []byte{cmdReadID}, len(flashID), func(id []byte) kont.Eff[[]byte] {
			return client.CloseDone(id)
		}))
	r := client.ExecError(ctx, s, protocol)
	if err, ok := r.GetLeft(); ok {
		_ = s.Close()
		return nil, err
	}
	id, _ := r.GetRight()
	return id, nil
}
