package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/visiongate/internal/repository"
	"github.com/aryan0dhankhar/visiongate/internal/service"
	"github.com/aryan0dhankhar/visiongate/pkg/config"
	"github.com/aryan0dhankhar/visiongate/pkg/database"
)

func main() {
	command := flag.String("command", "up", "migration command: up, status, down, create-user")
	target := flag.Int64("to", 0, "target version for down (0 reverts the latest migration)")
	username := flag.String("username", "", "username for create-user")
	password := flag.String("password", "", "password for create-user (or VISIONGATE_NEW_PASSWORD)")
	flag.Parse()

	log := logger.NewLogger(os.Getenv("LOG_LEVEL"))

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewConnectionPool(ctx, dbCfg.Pool(), log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	switch *command {
	case "up":
		err = pool.Migrate(ctx)
	case "status":
		err = pool.MigrationStatus(ctx)
	case "down":
		err = pool.Rollback(ctx, *target)
	case "create-user":
		err = createUser(ctx, pool, *username, *password, log)
	default:
		err = fmt.Errorf("unknown command %q", *command)
	}
	if err != nil {
		log.Error("migrate command failed", slog.String("command", *command), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func createUser(ctx context.Context, pool *database.ConnectionPool, username, password string, log *slog.Logger) error {
	if password == "" {
		password = os.Getenv("VISIONGATE_NEW_PASSWORD")
	}
	// Tokens are never issued here, so the auth service runs without a token manager.
	repo := repository.NewPostgresUserRepository(pool.GetDB(), log)
	svc := service.NewAuthService(repo, nil, service.AuthOptions{}, log)

	user, err := svc.CreateUser(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Printf("created user %s (%s)\n", user.Username, user.ID)
	return nil
}
