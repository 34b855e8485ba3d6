// Command rnv browses the binary referral network of one user, either live
// from the referral contract or from a fixture file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logrus.Errorf("rnv: %v", err)
		os.Exit(1)
	}
}
