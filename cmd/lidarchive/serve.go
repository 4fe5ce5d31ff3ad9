package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lidar-tools/lidarchive/internal/api"
	"github.com/lidar-tools/lidarchive/internal/history"
	"github.com/lidar-tools/lidarchive/internal/reader"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	root   *rootOptions
	listen string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{root: root}

	cmd := &cobra.Command{
		Use:   "serve [folder]",
		Short: "Serves the datalog, the task history and the measurements of a folder over HTTP",
		Long: `Starts a read-only status server. The datalog and the task history are
read on every request so a running batch can be followed live. With a
folder argument the measurements found in it are listed too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			folder := ""
			if len(args) == 1 {
				folder = args[0]
			}
			return opts.run(ctx, cmd, folder)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (default from configuration)")
	return cmd
}

func (o *serveOptions) run(ctx context.Context, cmd *cobra.Command, folder string) error {
	cfg, logger, err := o.root.load(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.WithField("component", "cli")

	deps := &api.Dependencies{
		SnapshotPath: cfg.Datalog.SwapFile,
		SplitParams:  cfg.SplitParams(),
		Version:      version,
	}
	if cfg.Datalog.HistoryDB != "" {
		deps.History = &historyFile{path: cfg.Datalog.HistoryDB, log: logger}
	}
	if folder != "" {
		folder, err = filepath.Abs(folder)
		if err != nil {
			return fmt.Errorf("failed to resolve data folder: %w", err)
		}
		cat := newCatalog(cfg, reader.NewRegistry(), logger)
		cat.SetFolder(folder)
		if _, err := cat.ReadFolder(ctx, nil, nil); err != nil {
			return fmt.Errorf("failed to scan %s: %w", folder, err)
		}
		deps.Measurements = cat
	}

	addr := cfg.Server.ListenAddress
	if o.listen != "" {
		addr = o.listen
	}

	e := api.NewServer(deps, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()
	log.Infof("Status server listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// historyFile opens the history database read-only for each query, leaving
// it free for a batch run to append to in between.
type historyFile struct {
	path string
	log  logrus.FieldLogger
}

func (h *historyFile) open() (*history.Store, error) {
	if _, err := os.Stat(h.path); err != nil {
		return nil, err
	}
	return history.OpenReadOnly(h.path, h.log)
}

func (h *historyFile) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	store, err := h.open()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Recent(ctx, limit)
}

func (h *historyFile) ForTask(ctx context.Context, taskID string) ([]history.Entry, error) {
	store, err := h.open()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.ForTask(ctx, taskID)
}

func (h *historyFile) Count(ctx context.Context) (int, error) {
	store, err := h.open()
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.Count(ctx)
}

var _ api.HistoryReader = (*historyFile)(nil)
