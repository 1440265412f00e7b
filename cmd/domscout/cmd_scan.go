package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"domscout/internal/engine"
	"domscout/internal/store"
	"domscout/internal/surface"
)

// scanResult is the JSON document scan prints.
type scanResult struct {
	RunID      string               `json:"run_id,omitempty"`
	Target     string               `json:"target"`
	Host       string               `json:"host"`
	Listeners  []engine.Record      `json:"listeners"`
	Handlers   []engine.Record      `json:"handlers"`
	Timeouts   []engine.TimerRecord `json:"timeouts"`
	Intervals  []engine.TimerRecord `json:"intervals"`
	Errors     []string             `json:"errors"`
	Dispatched []store.Dispatch     `json:"dispatched,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	events, _ := cmd.Flags().GetStringSlice("events")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	replay, _ := cmd.Flags().GetBool("replay")
	noStore, _ := cmd.Flags().GetBool("no-store")

	h, err := openHost(ctx, args[0])
	if err != nil {
		return err
	}
	defer h.close()

	s := surface.New(h.backend, cfg.Discovery.PageSize)
	res, err := collect(ctx, s, events, tags, cfg.Discovery.PageSize)
	if err != nil {
		return err
	}
	res.Target, res.Host = h.target, h.kind
	logger.Info("scan complete",
		zap.String("target", h.target),
		zap.Int("listeners", len(res.Listeners)),
		zap.Int("handlers", len(res.Handlers)),
		zap.Int("timers", len(res.Timeouts)+len(res.Intervals)))

	if replay {
		for _, r := range append(append([]engine.Record(nil), res.Listeners...), res.Handlers...) {
			ok, err := surface.DispatchEvent(ctx, s, r.Selector, r.EventType)
			if err != nil {
				return fmt.Errorf("replay %s on %s: %w", r.EventType, r.Selector, err)
			}
			res.Dispatched = append(res.Dispatched, store.Dispatch{
				Selector: r.Selector, EventType: r.EventType, OK: ok, At: time.Now().UTC(),
			})
		}
		// Replay can raise page errors.
		if res.Errors, err = surface.JSErrors(ctx, s); err != nil {
			return err
		}
	}

	if !noStore {
		runID, err := persist(ctx, res)
		if err != nil {
			return err
		}
		res.RunID = runID
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func collect(ctx context.Context, c surface.Caller, events, tags []string, pageSize int) (*scanResult, error) {
	res := &scanResult{}
	var err error
	if res.Listeners, err = surface.Collect(surface.Paginate(ctx, pageSize,
		surface.Records(c, surface.MethodEventListeners, events, tags))); err != nil {
		return nil, fmt.Errorf("collect listeners: %w", err)
	}
	if res.Handlers, err = surface.Collect(surface.Paginate(ctx, pageSize,
		surface.Records(c, surface.MethodElementsWithEventHandlers, events, tags))); err != nil {
		return nil, fmt.Errorf("collect handlers: %w", err)
	}
	if res.Timeouts, err = surface.Collect(surface.Paginate(ctx, pageSize,
		surface.Timers(c, surface.MethodSetTimeouts))); err != nil {
		return nil, fmt.Errorf("collect timeouts: %w", err)
	}
	if res.Intervals, err = surface.Collect(surface.Paginate(ctx, pageSize,
		surface.Timers(c, surface.MethodSetIntervals))); err != nil {
		return nil, fmt.Errorf("collect intervals: %w", err)
	}
	if res.Errors, err = surface.JSErrors(ctx, c); err != nil {
		return nil, fmt.Errorf("collect errors: %w", err)
	}
	return res, nil
}

func persist(ctx context.Context, res *scanResult) (string, error) {
	rs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return "", err
	}
	defer rs.Close()

	run, err := rs.BeginRun(ctx, res.Target, res.Host)
	if err != nil {
		return "", err
	}
	if err := rs.AddRecords(ctx, run.ID, res.Listeners); err != nil {
		return "", err
	}
	if err := rs.AddRecords(ctx, run.ID, res.Handlers); err != nil {
		return "", err
	}
	if err := rs.AddTimers(ctx, run.ID, append(append([]engine.TimerRecord(nil), res.Timeouts...), res.Intervals...)); err != nil {
		return "", err
	}
	if err := rs.AddErrors(ctx, run.ID, res.Errors); err != nil {
		return "", err
	}
	for _, d := range res.Dispatched {
		if err := rs.RecordDispatch(ctx, run.ID, d.Selector, d.EventType, d.OK); err != nil {
			return "", err
		}
	}
	if err := rs.FinishRun(ctx, run.ID); err != nil {
		return "", err
	}
	logger.Debug("run stored", zap.String("run", run.ID), zap.String("db", cfg.Store.Path))
	return run.ID, nil
}
