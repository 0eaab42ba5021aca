// ABOUTME: Interactive chat command: opens a conversation and relays stdin to the tutor
// ABOUTME: Supports /retry, /stats, /help, /quit and numbered quick replies

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brianfields/deeplearn-sub010/internal/auth"
	"github.com/brianfields/deeplearn-sub010/internal/config"
	"github.com/brianfields/deeplearn-sub010/internal/conversation"
	"github.com/brianfields/deeplearn-sub010/internal/metrics"
	"github.com/brianfields/deeplearn-sub010/internal/render"
	"github.com/brianfields/deeplearn-sub010/internal/sessionapi"
	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

const helpText = `commands:
  /retry   reconnect after the connection has failed
  /stats   show conversation statistics
  /help    show this help
  /quit    leave the chat
  1..n     send the numbered quick reply`

func newChatCmd(v *viper.Viper) *cobra.Command {
	var pathID, topicID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a conversation with the learning coach",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			colour := !color.NoColor && !v.GetBool("no-color")
			logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())
			return runChat(cmd.Context(), chatOptions{
				cfg:     cfg,
				pathID:  pathID,
				topicID: topicID,
				in:      cmd.InOrStdin(),
				out:     cmd.OutOrStdout(),
				logger:  logger,
				styler:  render.NewStyler(colour),
			})
		},
	}

	cmd.Flags().StringVar(&pathID, "path", "", "learning path ID (required)")
	cmd.Flags().StringVar(&topicID, "topic", "", "topic ID (required)")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

type chatOptions struct {
	cfg     *config.Config
	pathID  string
	topicID string
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	styler  *render.Styler

	// tokens overrides the token source built from cfg.
	tokens auth.TokenSource
}

func tokenSource(cfg *config.Config) auth.TokenSource {
	if cfg.Auth.Token != "" {
		return auth.StaticToken(cfg.Auth.Token)
	}
	return auth.EnvOrFile{Path: cfg.Auth.TokenFile}
}

func runChat(ctx context.Context, opts chatOptions) error {
	cfg := opts.cfg
	logger := opts.logger

	promReg := prometheus.NewRegistry()
	m := metrics.MustNew(promReg)
	if cfg.Metrics.Enabled {
		stop := serveMetrics(cfg.Metrics, promReg, logger)
		defer stop()
	}

	tokens := opts.tokens
	if tokens == nil {
		tokens = tokenSource(cfg)
	}

	client := sessionapi.New(cfg.APIBaseURL(),
		sessionapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		sessionapi.WithTokenSource(tokens),
		sessionapi.WithLogger(logger),
	)

	registry := conversation.NewRegistry(client,
		conversation.WithConfig(cfg.RegistrySettings()),
		conversation.WithSocketConfig(cfg.SocketSettings()),
		conversation.WithSocketOptions(socket.WithTokenSource(tokens)),
		conversation.WithLogger(logger),
		conversation.WithMetrics(m),
	)
	defer registry.Close()

	// Watch before starting so the first socket events are not missed.
	events, cancelWatch := registry.Watch(ctx, opts.pathID, opts.topicID)
	defer cancelWatch()

	conv, err := registry.StartConversation(ctx, conversation.StartRequest{
		PathID:  opts.pathID,
		TopicID: opts.topicID,
	})
	if err != nil {
		return fmt.Errorf("opening conversation: %w", err)
	}

	s := &chatSession{
		registry: registry,
		pathID:   opts.pathID,
		topicID:  opts.topicID,
		out:      opts.out,
		styler:   opts.styler,
	}
	for _, msg := range conv.Messages() {
		s.showMessage(msg)
	}
	fmt.Fprintln(s.out, opts.styler.State(conv.State()))

	lines := readLines(ctx, opts.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.showEvent(ev)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if s.handleInput(line) {
				return nil
			}
		}
	}
}

// readLines delivers stdin lines until EOF or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type chatSession struct {
	registry *conversation.Registry
	pathID   string
	topicID  string
	out      io.Writer
	styler   *render.Styler

	quickReplies []string
}

func (s *chatSession) showMessage(msg conversation.ChatMessage) {
	fmt.Fprintln(s.out, s.styler.Message(msg))
	if msg.Role == conversation.RoleAssistant {
		s.quickReplies = msg.QuickReplies
	}
}

func (s *chatSession) showEvent(ev conversation.Event) {
	switch ev.Type {
	case conversation.EventMessage:
		s.showMessage(*ev.Message)
	case conversation.EventProgress:
		fmt.Fprintln(s.out, s.styler.Progress(*ev.Progress))
	case conversation.EventSessionState:
		if ev.SessionState.Status != "" {
			fmt.Fprintln(s.out, "session:", ev.SessionState.Status)
		}
	case conversation.EventConnection:
		fmt.Fprintln(s.out, s.styler.State(ev.State))
	case conversation.EventError:
		fmt.Fprintln(s.out, s.styler.Error(ev.Err))
	}
}

// handleInput acts on one line of input and reports whether to quit.
func (s *chatSession) handleInput(line string) bool {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(s.out, helpText)
		return false
	case "/retry":
		if err := s.registry.Reconnect(s.pathID, s.topicID); err != nil {
			fmt.Fprintln(s.out, s.styler.Error(err))
		}
		return false
	case "/stats":
		st, err := s.registry.GetConversationStats(s.pathID, s.topicID)
		if err != nil {
			fmt.Fprintln(s.out, s.styler.Error(err))
			return false
		}
		fmt.Fprintln(s.out, s.styler.Stats(st))
		return false
	}

	if strings.HasPrefix(text, "/") {
		fmt.Fprintln(s.out, s.styler.Error(fmt.Errorf("unknown command %s (try /help)", text)))
		return false
	}

	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(s.quickReplies) {
		text = s.quickReplies[n-1]
	}

	if _, err := s.registry.SendMessage(s.pathID, s.topicID, text); err != nil {
		fmt.Fprintln(s.out, s.styler.Error(err))
	}
	return false
}

// serveMetrics exposes reg on cfg.Addr and returns a shutdown function.
func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
