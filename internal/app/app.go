// Package app hosts the authkit command line: a thin shell over the session
// manager for exercising the account service from a terminal.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/videocms/authkit/internal/config"
	"github.com/videocms/authkit/internal/mockserver"
	"github.com/videocms/authkit/session"
)

// Run bootstraps the authkit CLI.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: register, login, logout, whoami, reset, update-email, update-password, profile, check-email, or mock-serve")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if args[0] == "mock-serve" {
		return serveMock(ctx, cfg, logger)
	}

	manager, cleanup, err := buildManager(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return dispatch(ctx, manager, args)
}

func dispatch(ctx context.Context, manager *session.Manager, args []string) error {
	switch args[0] {
	case "register":
		email, password, err := credentialArgs(args[1:])
		if err != nil {
			return err
		}
		user, status, err := manager.Register(ctx, email, password)
		return report(user, status, err)

	case "login":
		email, password, err := credentialArgs(args[1:])
		if err != nil {
			return err
		}
		user, status, err := manager.Login(ctx, email, password)
		return report(user, status, err)

	case "logout":
		if err := manager.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	case "whoami":
		user, status, err := manager.Validate(ctx)
		if user == nil && status == session.StatusNone && err == nil {
			fmt.Println("not logged in")
			return nil
		}
		return report(user, status, err)

	case "reset":
		if len(args) != 2 {
			return errors.New("usage: reset <email>")
		}
		user, status, err := manager.Reset(ctx, args[1])
		return report(user, status, err)

	case "update-email":
		if len(args) != 2 {
			return errors.New("usage: update-email <new-email>")
		}
		user, status, err := manager.UpdateEmail(ctx, args[1])
		return report(user, status, err)

	case "update-password":
		if len(args) != 2 {
			return errors.New("usage: update-password <new-password>")
		}
		user, status, err := manager.UpdatePassword(ctx, args[1])
		return report(user, status, err)

	case "profile":
		profile, status, err := manager.GetProfile(ctx)
		return report(profile, status, err)

	case "check-email":
		if len(args) != 2 {
			return errors.New("usage: check-email <address>")
		}
		valid, status, err := manager.EmailValidate(ctx, args[1])
		if err != nil {
			return fmt.Errorf("verification unavailable (status %d): %w", status, err)
		}
		fmt.Printf("%s: valid=%t\n", args[1], valid)
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func credentialArgs(args []string) (email, password string, err error) {
	if len(args) != 2 {
		return "", "", errors.New("expected <email> <password>")
	}
	return args[0], args[1], nil
}

// report prints the entity as JSON on success and surfaces the status code
// alongside the error otherwise.
func report(entity any, status int, err error) error {
	if err != nil {
		return fmt.Errorf("operation failed (status %d): %w", status, err)
	}

	encoded, marshalErr := json.MarshalIndent(entity, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}
	fmt.Println(string(encoded))
	return nil
}

func serveMock(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	srv := mockserver.New(cfg.MockPort, logger)

	logger.Info("starting stub account server", "port", cfg.MockPort)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), mockserver.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
