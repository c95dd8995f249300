// Command totpctl is an operator tool for TOTP secrets and admin sessions.
// The offline commands create keys and secrets, render provisioning URIs and
// compute or check codes. The admin commands work against PG_CONN_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
