package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/analysis"
	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/margins"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	Long:  "Serves POST /analyze: the request body is a flight geometry GeoJSON, flight parameters come from query parameters, and the response carries the exposure analysis per layer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reproj, err := geo.NewReprojector()
		if err != nil {
			return err
		}
		analyzer, err := initAnalyzer(ctx, reproj)
		if err != nil {
			return err
		}
		r := buildRouter(margins.NewGenerator(reproj), analyzer)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		zap.L().Info("starting server", zap.Int("port", port))
		return runServer(ctx, srv)
	},
}

// runServer serves until ctx is canceled, then shuts down gracefully. The
// signal context is already dead at shutdown time, so in-flight requests get
// their own grace period.
func runServer(ctx context.Context, srv *http.Server) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	<-done
	return nil
}

func buildRouter(gen *margins.Generator, analyzer *analysis.Analyzer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/analyze", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
			return
		}
		input, err := geo.ParseGeoJSON(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		p, err := paramsFromQuery(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		ls, warnings, err := gen.Generate(input, p)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}

		res, err := analyzer.Run(req.Context(), ls)
		if err != nil {
			zap.L().Error("analysis failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, analyzeResponse{
			Result:        res,
			ParamWarnings: warnings,
		})
	})

	return r
}

type analyzeResponse struct {
	*analysis.Result
	ParamWarnings []margins.Warning `json:"param_warnings,omitempty"`
}

func paramsFromQuery(req *http.Request) (margins.Params, error) {
	p := defaultParams()
	q := req.URL.Query()

	for key, dst := range map[string]*float64{
		"fg_size":  &p.FGSize,
		"height":   &p.Height,
		"cv_size":  &p.CVSize,
		"adj_size": &p.AdjSize,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, eris.Errorf("invalid %s: %q", key, raw)
		}
		*dst = v
	}
	if raw := q.Get("grb_size"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, eris.Errorf("invalid grb_size: %q", raw)
		}
		p.GRBSize = &v
	}
	if raw := q.Get("corner_style"); raw != "" {
		p.Corner = margins.CornerStyle(raw)
	}

	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
