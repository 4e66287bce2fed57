package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/config"
	"github.com/54b3r/raggpt-go/internal/history"
	"github.com/54b3r/raggpt-go/internal/logging"
	"github.com/54b3r/raggpt-go/internal/server"
	"github.com/54b3r/raggpt-go/internal/tracing"
)

// NewServeCmd constructs the `raggpt serve` command, which starts the chat
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RAG-GPT chat API",
		Long: `Start the RAG-GPT HTTP server.

Endpoints:
  POST   /api/chat       ask a question
  POST   /api/upload     upload files to index or summarise
  POST   /api/feedback   like or dislike a response
  GET    /api/history    read a session's conversation
  DELETE /api/history    clear a session's conversation
  GET    /api/health     liveness
  GET    /api/ready      readiness of the model and the store
  GET    /metrics        Prometheus metrics

Reference links in answers point at the file server; run 'raggpt files'
alongside.

Examples:
  raggpt serve
  raggpt serve --port 9090
  MODEL_PROVIDER=azure raggpt serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(log)
			defer flush()

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.close()

			bot, err := st.newChatBot(log)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise chatbot: %w", err)
			}

			historyStore := openHistory(st.settings, log)
			var sessionStore history.Store
			if historyStore != nil {
				sessionStore = historyStore
				defer func() { _ = historyStore.Close() }()
			}
			sessions := history.NewSessions(sessionStore, log)

			if !cmd.Flags().Changed("host") {
				host = st.settings.ServerHost
			}
			if !cmd.Flags().Changed("port") {
				port = st.settings.ServerPort
			}

			srvCfg := &server.Config{
				Host:               host,
				Port:               port,
				Logger:             log,
				Pingers:            st.pingers(),
				APIKey:             st.settings.APIKey,
				UploadDir:          st.settings.UploadDir,
				DefaultTemperature: st.providerCfg.Tuning.Temperature,
			}
			if historyStore != nil {
				srvCfg.FeedbackStore = historyStore
			}
			srv, err := server.New(bot, sessions, srvCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default: SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default: SERVER_PORT)")

	return cmd
}

// openHistory opens the conversation database. HISTORY_DB=disabled keeps
// sessions in memory only; failures degrade to the same with a warning.
func openHistory(s *config.Settings, log *slog.Logger) *history.SQLiteStore {
	path := s.HistoryDB
	if path == "disabled" {
		log.Info("history: disabled via HISTORY_DB=disabled")
		return nil
	}
	if path == "" {
		var err error
		if path, err = history.DefaultDBPath(); err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	hs, err := history.Open(path)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", path))
	return hs
}
