// Package app assembles the delivery pipeline from configuration. The
// long-running worker and the Lambda entry point share it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/api"
	"github.com/sungwon/notification-pipeline/internal/auth"
	"github.com/sungwon/notification-pipeline/internal/config"
	"github.com/sungwon/notification-pipeline/internal/dispatch"
	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/handler"
	"github.com/sungwon/notification-pipeline/internal/health"
	"github.com/sungwon/notification-pipeline/internal/metrics"
	"github.com/sungwon/notification-pipeline/internal/msgstore"
	"github.com/sungwon/notification-pipeline/internal/provider"
	"github.com/sungwon/notification-pipeline/internal/queue"
	"github.com/sungwon/notification-pipeline/internal/retry"
	"github.com/sungwon/notification-pipeline/internal/storage"
)

// Pipeline holds the assembled components.
type Pipeline struct {
	Processor *queue.Processor
	DLQ       *queue.DeadLetterManager
	Collector *metrics.Collector
	Provider  provider.Provider
	Health    *health.Checker
	// Registry is nil when Prometheus export is disabled.
	Registry *prometheus.Registry
	// JWT is nil when no signing key is configured.
	JWT *auth.JWTService

	db *storage.DB
}

// Build creates every component described by cfg. Close releases what it
// opened.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	sinks, err := p.buildSinks(ctx, cfg.Metrics, log)
	if err != nil {
		return nil, err
	}
	p.Collector = metrics.NewCollector(sinks...)

	p.Provider, err = provider.New(cfg.Email, cfg.Breaker, log)
	if err != nil {
		return nil, fmt.Errorf("create email provider: %w", err)
	}

	var users handler.UserStore
	if cfg.Database.URL != "" {
		p.db, err = storage.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		users = storage.NewUserRepository(p.db)
		log.Info().Msg("recipient lookup enabled")
	}

	registry, err := handler.NewRegistry(handler.Deps{
		Provider: p.Provider,
		Users:    users,
		From:     cfg.Email.From,
		Metrics:  p.Collector,
		Logger:   log,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	dispatcher, err := dispatch.New(registry, log)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	archive, err := msgstore.New(ctx, cfg.Archive, log)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create dlq archive: %w", err)
	}
	publisher, err := queue.NewPublisher(ctx, cfg.DLQ, p.Collector, log)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create dlq publisher: %w", err)
	}
	p.DLQ = queue.NewDeadLetterManager(publisher, archive, p.Collector, log)

	classifier := errclass.NewClassifier()
	executor := retry.NewExecutor(classifier, p.Collector, log)
	p.Processor = queue.NewProcessor(dispatcher, p.DLQ, executor, classifier, queue.ProcessorConfig{
		Retry:           cfg.Retry,
		RetryCap:        cfg.Queue.RetryCap,
		MaxReceiveCount: cfg.Queue.MaxReceiveCount,
	}, p.Collector, log)

	p.Health = health.NewChecker(log, health.WithInterval(cfg.Health.Interval), health.WithTimeout(cfg.Health.Timeout))
	// The DLQ probe publishes a real message, so it only runs on demand
	// through the admin route.
	p.Health.Register("email", p.Provider.HealthCheck)
	if p.db != nil {
		p.Health.Register("database", p.db.Ping)
	}

	if cfg.Auth.Enabled() {
		p.JWT = auth.NewJWTService(cfg.Auth)
	}

	return p, nil
}

func (p *Pipeline) buildSinks(ctx context.Context, cfg config.MetricsConfig, log zerolog.Logger) ([]metrics.Sink, error) {
	var sinks []metrics.Sink

	if cfg.Prometheus {
		p.Registry = prometheus.NewRegistry()
		p.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sinks = append(sinks, metrics.NewPrometheusSink(p.Registry))
	}

	if cfg.CloudWatch {
		var optFns []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
		sinks = append(sinks, metrics.NewCloudWatchSink(client, cfg.Namespace, log))
	}

	return sinks, nil
}

// Router returns the operational HTTP handler.
func (p *Pipeline) Router(log zerolog.Logger) http.Handler {
	d := api.Deps{
		Readiness: p.Health,
		Service:   p.Collector,
		DLQ:       p.DLQ,
		JWT:       p.JWT,
	}
	if p.Registry != nil {
		d.Gatherer = p.Registry
	}
	return api.NewRouter(d, log)
}

// Close releases the database pool.
func (p *Pipeline) Close() {
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
}
