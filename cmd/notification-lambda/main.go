package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/sungwon/notification-pipeline/internal/app"
	"github.com/sungwon/notification-pipeline/internal/config"
	"github.com/sungwon/notification-pipeline/internal/logger"
	"github.com/sungwon/notification-pipeline/internal/queue"
)

func main() {
	// Lambda deployments are configured through NOTIFY_ environment
	// variables; a config directory is optional. SQS pushes the records, so
	// no source queue URL is needed.
	cfg, err := config.LoadForLambda(os.Getenv("NOTIFY_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging.Logger())

	pipeline, err := app.Build(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer pipeline.Close()

	handler := queue.NewLambdaHandler(pipeline.Processor, log)

	// Local mode reads one SQS event as JSON from stdin.
	if os.Getenv("APP_ENV") == "local" {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read stdin")
		}
		var event events.SQSEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Fatal().Err(err).Msg("failed to parse stdin as SQS event")
		}
		resp, err := handler.Handle(context.Background(), event)
		if err != nil {
			log.Fatal().Err(err).Msg("handler failed")
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	lambda.Start(handler.Handle)
}
