// Package main prints the signed-in user's orders, cart and wishlist as the
// storefront client sees them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loft-dughairi/storefront/pkg/config"
	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/metrics"
	"github.com/loft-dughairi/storefront/pkg/moneysar"
	"github.com/loft-dughairi/storefront/svc/storefront"
)

func main() {
	wait := flag.Bool("wait", false, "keep serving /metrics after printing until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, *wait); err != nil {
		logger.LogError(ctx, err, "storefront-status failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, wait bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Token == "" {
		return errors.New("STOREFRONT_TOKEN is required")
	}

	log := logger.NewLogger(cfg.ServiceName, "cli")
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	log.SetOutput(os.Stderr)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.LogError(ctx, err, "metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info(ctx, "serving metrics", logger.Fields{"addr": cfg.MetricsAddr})
	}

	client, err := storefront.New(cfg, storefront.WithLogger(log))
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx, cfg.Token); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	orders, err := client.Orders.ListMine(ctx)
	if err != nil {
		return fmt.Errorf("list orders: %s", errs.UserMessage(err, "could not load orders"))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tDISPLAY\tACTIVE RETURN")
	for _, v := range orders {
		active := "-"
		if v.ActiveReturn != nil {
			active = fmt.Sprintf("#%d %s", v.ActiveReturn.ID, v.ActiveReturn.Status)
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\n", v.Order.ID, v.Order.Status, v.DisplayStatus, active)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	cart := client.Cart.Snapshot()
	fmt.Fprintf(out, "\ncart: %d items, total %s\n", cart.Value.TotalItems, moneysar.Format(cart.Value.TotalPrice))
	fmt.Fprintf(out, "wishlist: %d items\n", client.Wishlist.Count())
	if cart.Error != "" {
		fmt.Fprintf(out, "cart error: %s\n", cart.Error)
	}

	if wait && cfg.MetricsAddr != "" {
		<-ctx.Done()
	}
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
