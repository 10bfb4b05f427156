/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/tieubaoca/edu-assistant/handler"
	"github.com/tieubaoca/edu-assistant/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// startServerCmd represents the startServer command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	Long:  `Starts the HTTP server exposing document upload, retrieval and chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.index.Ping(ctx); err != nil {
			a.logger.Warn("vector index is not reachable yet", zap.Error(err))
		}

		if !a.cfg.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		maxUpload, _ := cmd.Flags().GetInt64("max-upload-size")
		router := handler.NewRouter(handler.RouterDeps{
			Documents:     a.docs,
			Sessions:      a.sessions,
			Feedback:      a.feedback,
			Activity:      a.activity,
			WebSocket:     service.NewWebSocketService(a.logger),
			JWTSecret:     a.cfg.JWT.Secret,
			MaxUploadSize: maxUpload,
			Logger:        a.logger,
		})

		srv := &http.Server{
			Addr:    ":" + a.cfg.Port,
			Handler: router,
		}
		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("starting server", zap.String("port", a.cfg.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(startServerCmd)
	startServerCmd.Flags().Int64("max-upload-size", handler.DefaultMaxUploadSize, "maximum upload size in bytes")
}
