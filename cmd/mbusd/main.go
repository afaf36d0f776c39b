// mbusd is the standalone message broker. It binds a listener, writes
// the (address, authkey) descriptor file for clients to discover, and
// relays messages between connected bridges until interrupted.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/beanfork/mbus/internal/broker"
	"github.com/beanfork/mbus/internal/config"
	"github.com/beanfork/mbus/internal/descriptor"
	"github.com/beanfork/mbus/internal/logging"
)

func main() {
	var (
		addr      string
		descPath  string
		overwrite bool
	)

	rootCmd := &cobra.Command{
		Use:   "mbusd",
		Short: "mbus message broker",
		Long: `mbusd relays pub-sub messages between connected clients.

On startup it writes a JSON descriptor file containing the listen
address and a freshly generated authentication key. Clients read that
file to connect: see mbus-cli, or bridge.Dial in code.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, descPath, overwrite)
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from MBUS_LISTEN_ADDR, or 127.0.0.1:0)")
	rootCmd.Flags().StringVar(&descPath, "descriptor", "", "descriptor file path (default from MBUS_DESCRIPTOR, or mbus.json)")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite the descriptor file if it already exists")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(addr, descPath string, overwrite bool) error {
	logging.New()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if descPath != "" {
		cfg.DescriptorPath = descPath
	}

	authKey, err := resolveAuthKey(cfg.AuthKey)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	desc := descriptor.Descriptor{
		Address: ln.Addr().String(),
		AuthKey: hex.EncodeToString(authKey),
	}
	if err := descriptor.Write(afero.NewOsFs(), cfg.DescriptorPath, desc, overwrite); err != nil {
		ln.Close()
		return err
	}

	b := broker.New(authKey)
	slog.Info("broker listening", "addr", desc.Address, "descriptor", cfg.DescriptorPath)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(ln) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return b.Shutdown(ctx)
	}
}

// resolveAuthKey uses the configured key when set, otherwise generates
// a random one. The key only ever reaches clients through the
// descriptor file.
func resolveAuthKey(configured string) ([]byte, error) {
	if configured != "" {
		key, err := hex.DecodeString(configured)
		if err != nil {
			return nil, fmt.Errorf("MBUS_AUTHKEY is not valid hex: %w", err)
		}
		return key, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
