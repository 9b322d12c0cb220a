package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/linkstub"
	"github.com/fjod/go_checkout/pkg/logger"
)

func main() {
	var (
		port      string
		linkBase  string
		maxAmount int64
		autoPay   bool
	)
	flag.StringVar(&port, "port", "8081", "Server port")
	flag.StringVar(&linkBase, "link-base", "https://pago.izipay.pe/pago", "Simulated hosted payment page")
	flag.Int64Var(&maxAmount, "max-amount", 0, "Reject orders above this amount in minor units (0 disables)")
	flag.BoolVar(&autoPay, "auto-pay", false, "Report issued payments as paid on the first status lookup")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "info", Format: "console"}); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L().Named("linkstub")

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      linkstub.NewServer(linkstub.Config{LinkBase: linkBase, MaxAmount: maxAmount, AutoPay: autoPay}, log).Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("link stub starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}
