package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/app"
	"github.com/sonicjewellers/cartsync/internal/version"
)

func main() {
	printVersion := flag.Bool("version", false, "print build info and exit")
	flag.Parse()

	if *printVersion {
		fmt.Println(version.String())
		return
	}

	setupLogger()

	cfg, err := app.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version": version.GetVersion(),
		"commit":  version.GetCommit(),
		"built":   version.GetDate(),
		"driver":  cfg.BackendDriver,
	}).Info("запускаем cart-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("cart-service завершился с ошибкой")
	}

	log.Info("cart-service остановлен")
}

func setupLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(log.InfoLevel)
}
