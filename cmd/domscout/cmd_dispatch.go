package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"domscout/internal/surface"
)

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	target, selector, eventType := args[0], args[1], args[2]
	h, err := openHost(ctx, target)
	if err != nil {
		return err
	}
	defer h.close()

	s := surface.New(h.backend, cfg.Discovery.PageSize)
	ok, err := surface.DispatchEvent(ctx, s, selector, eventType)
	if err != nil {
		return err
	}
	logger.Info("dispatched",
		zap.String("selector", selector),
		zap.String("event", eventType),
		zap.Bool("ok", ok))

	msgs, err := surface.JSErrors(ctx, s)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ok)
	for _, m := range msgs {
		fmt.Fprintf(cmd.ErrOrStderr(), "page error: %s\n", m)
	}
	return nil
}
