// ABOUTME: Minimal fake learning-coach backend for E2E testing of tutor-chat
// ABOUTME: Usage: fake-tutor [-addr localhost:8000] [-jwt-secret S] [-replay] [-issue learner-id]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/brianfields/deeplearn-sub010/internal/auth"
	"github.com/brianfields/deeplearn-sub010/internal/fakebackend"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "HTTP listen address")
	secret := flag.String("jwt-secret", os.Getenv("FAKE_TUTOR_JWT_SECRET"), "require HS256 bearer tokens signed with this secret")
	issue := flag.String("issue", "", "print a token for this learner ID and exit (requires -jwt-secret)")
	replay := flag.Bool("replay", false, "resend the last tutor message on every socket connect")
	greeting := flag.String("greeting", "", "opening tutor message for new sessions")
	flag.Parse()

	if err := run(*addr, *secret, *issue, *replay, *greeting); err != nil {
		log.Fatal(err)
	}
}

func run(addr, secret, issue string, replay bool, greeting string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts := []fakebackend.Option{
		fakebackend.WithLogger(logger),
		fakebackend.WithReplayLast(replay),
	}
	if greeting != "" {
		opts = append(opts, fakebackend.WithGreeting(greeting))
	}

	if secret != "" {
		verifier := auth.NewJWTVerifier([]byte(secret))
		if issue != "" {
			token, err := verifier.Generate(issue, 24*time.Hour)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Println(token)
			return nil
		}
		opts = append(opts, fakebackend.WithVerifier(verifier))
	} else if issue != "" {
		return errors.New("-issue requires -jwt-secret")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           fakebackend.New(opts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake tutor listening", "addr", addr, "auth", secret != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
