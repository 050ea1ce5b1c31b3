package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only dashboard API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// buildingView is the dashboard payload for one BBL.
type buildingView struct {
	Building     *model.Building     `json:"building"`
	Permits      []model.Permit      `json:"permits,omitempty"`
	Transactions []model.Transaction `json:"transactions,omitempty"`
	Parties      []model.Party       `json:"parties,omitempty"`
	Score        *model.ScoreRecord  `json:"score,omitempty"`
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/buildings/{bbl}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "bbl")
		ctx := req.Context()

		b, err := st.GetBuilding(ctx, id)
		if err != nil {
			serverError(w, err)
			return
		}
		if b == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown bbl"})
			return
		}

		view := buildingView{Building: b}
		if view.Permits, err = st.ListPermitsByBBL(ctx, id); err != nil {
			serverError(w, err)
			return
		}
		if view.Transactions, err = st.ListTransactions(ctx, id); err != nil {
			serverError(w, err)
			return
		}
		if view.Parties, err = st.ListParties(ctx, id); err != nil {
			serverError(w, err)
			return
		}
		if view.Score, err = st.GetScore(ctx, id); err != nil {
			serverError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
