package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/spf13/cobra"

	"domscout/internal/surface"
)

func runCall(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := surface.NewClient(args[0])
	method := args[1]
	all, _ := cmd.Flags().GetBool("all")
	out := cmd.OutOrStdout()

	if all {
		items, err := followPages(ctx, client, method)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	var raw json.RawMessage
	if len(args) == 3 {
		raw = json.RawMessage(args[2])
	}
	res, err := client.Call(ctx, method, raw)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(res)
	}
	fmt.Fprintln(out, pretty.String())
	return nil
}

// followPages drains a paginated method. get_all_event_listeners is the explicit
// listeners followed by the declarative handlers.
func followPages(ctx context.Context, c surface.Caller, method string) ([]any, error) {
	size := cfg.Discovery.PageSize
	switch method {
	case "get_all_event_listeners":
		return drain(surface.AllEventListeners(ctx, c, nil, nil, size))
	case surface.MethodEventListeners, surface.MethodElementsWithEventHandlers:
		return drain(surface.Paginate(ctx, size, surface.Records(c, method, nil, nil)))
	case surface.MethodSetTimeouts, surface.MethodSetIntervals:
		return drain(surface.Paginate(ctx, size, surface.Timers(c, method)))
	default:
		return nil, fmt.Errorf("%s is not paginated", method)
	}
}

func drain[T any](seq iter.Seq2[T, error]) ([]any, error) {
	items, err := surface.Collect(seq)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}
