package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"domscout/internal/engine"
	"domscout/internal/surface"
)

const reloadDebounce = 100 * time.Millisecond

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = cfg.Surface.Listen
	}
	watch, _ := cmd.Flags().GetBool("watch")

	h, err := openHost(ctx, args[0])
	if err != nil {
		return err
	}
	// close is swapped on reload.
	defer func() { _ = h.close() }()

	s := surface.New(h.backend, cfg.Discovery.PageSize)
	srv := surface.NewServer(listen, s.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", zap.String("addr", listen), zap.String("target", h.target), zap.String("host", h.kind))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if watch {
		if h.kind != hostStatic {
			return errors.New("--watch needs a local file served without --live")
		}
		g.Go(func() error {
			return watchDocument(gctx, h, s)
		})
	}
	return g.Wait()
}

// watchDocument reloads h's file into a fresh Context whenever it is written. The old
// Context is closed, which ends its document lifetime.
func watchDocument(ctx context.Context, h *host, s *surface.Surface) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files by rename, so watch the directory.
	path, err := filepath.Abs(h.target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", h.target, err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := reload(h, s); err != nil {
				logger.Warn("reload failed, keeping previous document", zap.Error(err))
			}
		}
	}
}

func reload(h *host, s *surface.Surface) error {
	doc, err := loadDocument(h.target)
	if err != nil {
		return err
	}
	c := engine.New(doc, engineOptions(cfg))
	old := h.close
	s.SetBackend(surface.Local(c))
	h.backend = surface.Local(c)
	h.close = func() error { c.Close(); return nil }
	_ = old()
	logger.Info("document reloaded", zap.String("path", h.target), zap.String("document", doc.ID()))
	return nil
}
