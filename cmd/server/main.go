package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	intake "github.com/shlomoshadmi-byte/shidduch-portal"
	"github.com/shlomoshadmi-byte/shidduch-portal/cmd/server/config"
)

type App struct {
	config *gconfig.Container[*config.AppConfig]
	bunDB  *bun.DB
	repo   intake.RepositoryManager
	srv    router.Server[*fiber.App]
	logger intake.Logger
}

func (a *App) Config() *config.AppConfig {
	return a.config.Raw()
}

func main() {
	cfg := gconfig.New(&config.AppConfig{})

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: intake.NewLogger("server"),
	}

	if app.Config().Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
		fmt.Println("============")
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	app.srv.Serve(app.Config().GetAddress())

	WaitExitSignal()

	if err := app.bunDB.Close(); err != nil {
		app.logger.Error("database close: %v", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.Config().Data.DSN)
	if err != nil {
		return err
	}

	bunDB := bun.NewDB(db, sqlitedialect.New())

	// The form tool normally owns this table; creating it here keeps local
	// runs and tests self contained.
	if _, err := bunDB.NewCreateTable().
		Model((*intake.Submission)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	app.bunDB = bunDB
	app.repo = intake.NewRepositoryManager(bunDB)

	return app.repo.Validate()
}

func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.Config()

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: cfg.Debug,
			StrictRouting:     false,
		}))
	})

	alerts := intake.NewWebhookNotifier(
		cfg.Hooks.AlertsEndpoint,
		intake.WithNotifierLogger(app.logger),
	)

	mail := intake.NewWebhookNotifier(
		cfg.Hooks.MailEndpoint,
		intake.WithNotifierLogger(app.logger),
		intake.WithNotifierCredential(cfg.Hooks.Credential),
	)

	links := intake.NewLinkBuilder(cfg.Portal.BaseURL)

	photos := intake.NewPhotoStore(intake.PhotoStoreConfig{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	}).WithLogger(app.logger)

	verifier := intake.NewSessionVerifier(
		[]byte(cfg.Session.SigningKey),
		cfg.Session.Issuer,
	).WithLogger(app.logger)

	intake.RegisterIntakeRoutes(srv.Router(),
		intake.WithControllerLogger(app.logger),
		intake.WithControllerRepo(app.repo),
		intake.WithControllerNotifier(alerts),
		intake.WithControllerMailNotifier(mail),
		intake.WithControllerPhotos(photos),
		intake.WithControllerLinks(&links),
		intake.WithControllerVerifier(verifier),
		intake.WithControllerCredential(cfg.Hooks.Credential),
		intake.WithControllerDebug(cfg.Debug),
	)

	app.srv = srv
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
