package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/clinicaldocs/internal/config"
	"github.com/ehr/clinicaldocs/internal/domain/cdadocument"
	"github.com/ehr/clinicaldocs/internal/platform/cache"
	"github.com/ehr/clinicaldocs/internal/platform/ccda"
)

func openCache(ctx context.Context, cfg *config.Config) (*cache.Client, error) {
	client, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func organization(cfg *config.Config) cdadocument.Organization {
	return cdadocument.Organization{
		OID:      cfg.OrgOID,
		Name:     cfg.OrgName,
		Phone:    cfg.OrgPhone,
		Realm:    cfg.RealmCode,
		Language: cfg.LanguageCode,
	}
}

// loadSource reads a clinical snapshot file. An empty path yields an empty
// source, which is enough for commands that never assemble.
func loadSource(path string) (*cdadocument.MemorySource, error) {
	src := cdadocument.NewMemorySource()
	if path == "" {
		return src, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := cdadocument.ReadSnapshot(f)
	if err != nil {
		return nil, err
	}
	src.Load(snap)
	return src, nil
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("snapshot", "", "JSON file with the clinical records to assemble from")
	cmd.Flags().String("kind", "", "Document kind, e.g. discharge-summary or lab-report")
	cmd.Flags().String("patient", "", "Patient id")
	cmd.Flags().String("medical-record", "", "Medical record id (optional)")
	cmd.Flags().String("source", "", "Source record id (optional)")
	cmd.Flags().String("actor", "", "Acting user id (optional)")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("patient")
}

func optionalUUID(cmd *cobra.Command, name string) (*uuid.UUID, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &id, nil
}

func requestFromFlags(cmd *cobra.Command) (cdadocument.Request, error) {
	var req cdadocument.Request

	kind, _ := cmd.Flags().GetString("kind")
	k, err := cdadocument.ParseKind(kind)
	if err != nil {
		return req, err
	}
	req.Kind = k

	patient, _ := cmd.Flags().GetString("patient")
	if req.PatientID, err = uuid.Parse(patient); err != nil {
		return req, fmt.Errorf("--patient: %w", err)
	}
	if req.MedicalRecordID, err = optionalUUID(cmd, "medical-record"); err != nil {
		return req, err
	}
	if req.SourceID, err = optionalUUID(cmd, "source"); err != nil {
		return req, err
	}
	return req, nil
}

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Assemble a document from a snapshot and print its XML without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("snapshot")
			src, err := loadSource(path)
			if err != nil {
				return err
			}
			actor, _ := cmd.Flags().GetString("actor")

			assembler := cdadocument.NewAssembler(src, organization(cfg), logger, nil)
			doc, err := assembler.Assemble(cmd.Context(), req, assembler.NewIdentifier(), actor, time.Now())
			if err != nil {
				return err
			}
			text := ccda.Serialize(doc)
			if _, err := cmd.OutOrStdout().Write(text); err != nil {
				return err
			}

			result := ccda.NewValidator().Validate(text)
			for _, w := range result.Warnings {
				logger.Warn().Str("document_id", doc.ID().String()).Msg(w)
			}
			for _, e := range result.Errors {
				logger.Error().Str("document_id", doc.ID().String()).Msg(e)
			}
			if !result.IsValid {
				return errors.New("rendered document failed validation")
			}
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

// newService wires the registry for one tenant.
func (e *env) newService(ctx context.Context, src cdadocument.SourceAccessor, reg prometheus.Registerer) (*cdadocument.Service, func(), error) {
	metrics := cdadocument.NewMetrics(reg)
	assembler := cdadocument.NewAssembler(src, organization(e.cfg), e.logger, metrics)
	opts := []cdadocument.Option{cdadocument.WithMetrics(metrics)}

	client, err := openCache(ctx, e.cfg)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {}
	if client != nil {
		opts = append(opts, cdadocument.WithTextCache(cdadocument.NewRedisTextCache(client, e.cfg.TextCacheTTL)))
		closer = func() { _ = client.Close() }
	}
	return cdadocument.NewService(cdadocument.NewRepoPG(e.pool), assembler, e.logger, opts...), closer, nil
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Assemble a document from a snapshot and store it as a draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			req, err := requestFromFlags(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("snapshot")
			src, err := loadSource(path)
			if err != nil {
				return err
			}

			svc, closeCache, err := e.newService(ctx, src, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer closeCache()

			actor, _ := cmd.Flags().GetString("actor")
			rec, err := svc.Generate(ctx, req, actor)
			if err != nil {
				return err
			}
			result, err := svc.Validate(ctx, rec.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tvalid=%t\n", rec.ID, rec.Document.ID(), rec.Status(), result.IsValid)
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().String("tenant", "", "Tenant to store the document in (default DEFAULT_TENANT)")
	return cmd
}

func revalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revalidate",
		Short: "Re-validate every stored document in a status and record the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			name, _ := cmd.Flags().GetString("status")
			status, err := ccda.ParseStatus(name)
			if err != nil {
				return err
			}
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			if concurrency <= 0 {
				concurrency = e.cfg.RevalidateConcurrency
			}
			addr, _ := cmd.Flags().GetString("metrics-addr")
			if addr == "" {
				addr = e.cfg.MetricsAddr
			}

			reg := prometheus.NewRegistry()
			if addr != "" {
				stop := serveMetrics(addr, reg, e.logger)
				defer stop()
			}

			svc, closeCache, err := e.newService(ctx, cdadocument.NewMemorySource(), reg)
			if err != nil {
				return err
			}
			defer closeCache()

			started := time.Now()
			report, err := svc.Revalidate(ctx, status, concurrency)
			e.logger.Info().
				Str("status", status.String()).
				Int("checked", report.Checked).
				Int("invalid", report.Invalid).
				Dur("elapsed", time.Since(started)).
				Msg("revalidation finished")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, invalid %d\n", report.Checked, report.Invalid)
			return nil
		},
	}
	cmd.Flags().String("status", ccda.StatusDraft.String(), "Status of the documents to re-validate")
	cmd.Flags().Int("concurrency", 0, "Documents validated at once (default REVALIDATE_CONCURRENCY)")
	cmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address while running")
	cmd.Flags().String("tenant", "", "Tenant to re-validate (default DEFAULT_TENANT)")
	return cmd
}

// serveMetrics exposes reg over HTTP until the returned stop func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
