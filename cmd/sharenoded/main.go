// Copyright (c) 2025 The FileZap developers

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/limits"
	"github.com/VetheonGames/sharenode/pkg/node"
	"github.com/VetheonGames/sharenode/pkg/rpcserver"
)

// shutdownTimeout bounds the BYE round and the control API shutdown
const shutdownTimeout = 5 * time.Second

// sharenodedMain is the real main function for sharenoded. It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func sharenodedMain() error {
	cfg, _, err := loadConfig()
	if err != nil {
		// go-flags already printed its own errors.
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C).
	interrupt := interruptSignal()
	defer shndLog.Info("Shutdown complete")

	// Show version at startup.
	shndLog.Infof("Version %s", version())
	if cur, max, err := limits.FileDescriptorLimit(); err == nil {
		shndLog.Debugf("File descriptor limit %d (max %d)", cur, max)
	}

	store, err := chunkstore.Open(cfg.ChunkCache, cfg.CacheDir, cfg.MaxChunkBytes)
	if err != nil {
		shndLog.Errorf("Unable to open chunk cache: %v", err)
		return err
	}
	defer func() {
		shndLog.Infof("Closing chunk cache...")
		store.Close()
	}()

	n, err := node.New(cfg.nodeConfig(store))
	if err != nil {
		shndLog.Criticalf("Unable to start node: %v", err)
		return err
	}

	n.Start()
	defer func() {
		shndLog.Infof("Gracefully shutting down the node...")
		n.Stop()
		n.WaitForShutdown()
	}()

	if cfg.RPCListen != "" {
		rpc := rpcserver.NewServer(n)
		if _, err := rpc.Start(cfg.RPCListen); err != nil {
			shndLog.Criticalf("Unable to start control API: %v", err)
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := rpc.Stop(ctx); err != nil {
				shndLog.Errorf("Control API shutdown: %v", err)
			}
		}()
	}

	<-interrupt

	// Tell the neighbors before the listener goes away.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	n.Leave(ctx)
	cancel()
	return nil
}

func main() {
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	if err := sharenodedMain(); err != nil {
		os.Exit(1)
	}
}
