// Command enqueue publishes a sample notification to the source queue.
//
// Usage:
//
//	enqueue --user u-1 --type WELCOME --transporter MAIL --email ada@example.com
//	enqueue --shape envelope --count 5
//	enqueue --user u-7 --email grace@example.com --name Grace --seed
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/bootstrap"
	"github.com/sungwon/notification-pipeline/internal/config"
	"github.com/sungwon/notification-pipeline/internal/logger"
	"github.com/sungwon/notification-pipeline/internal/notification"
	"github.com/sungwon/notification-pipeline/internal/queue"
	"github.com/sungwon/notification-pipeline/internal/storage"
)

type options struct {
	configDir   string
	userID      string
	eventType   string
	transporter string
	email       string
	name        string
	data        string
	shape       string
	count       int
	seed        bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configDir, "config", "config", "directory containing config.yaml")
	flag.StringVar(&o.userID, "user", "user-1", "userId of the notification")
	flag.StringVar(&o.eventType, "type", string(notification.EventWelcome), "notificationType")
	flag.StringVar(&o.transporter, "transporter", string(notification.TransporterMail), "transporterType")
	flag.StringVar(&o.email, "email", "", "recipient email placed in additionalData.email")
	flag.StringVar(&o.data, "data", "", "additionalData as a JSON object")
	flag.StringVar(&o.shape, "shape", "raw", "body shape: raw, envelope, or bare")
	flag.IntVar(&o.count, "count", 1, "number of messages to publish")
	flag.StringVar(&o.name, "name", "", "recipient name used with --seed")
	flag.BoolVar(&o.seed, "seed", false, "upsert the user into the database instead of carrying the email in the payload")
	flag.Parse()
	return o
}

func main() {
	o := parseFlags()

	cfg, err := config.Load(o.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("warn")

	payload := notification.Payload{
		UserID:           o.userID,
		NotificationType: notification.EventType(strings.ToUpper(o.eventType)),
		TransporterType:  notification.Transporter(strings.ToUpper(o.transporter)),
	}
	if o.data != "" {
		if err := json.Unmarshal([]byte(o.data), &payload.AdditionalData); err != nil {
			fmt.Fprintf(os.Stderr, "error: --data is not a JSON object: %v\n", err)
			os.Exit(2)
		}
	}
	if o.email != "" && !o.seed {
		if payload.AdditionalData == nil {
			payload.AdditionalData = map[string]any{}
		}
		payload.AdditionalData["email"] = o.email
	}

	body, err := encode(payload, o.shape)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if o.seed {
		if err := seedUser(ctx, cfg.Database, storage.User{ID: o.userID, Email: o.email, Name: o.name}, log); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed user: %v\n", err)
			os.Exit(1)
		}
	}

	pub, err := queue.NewSourcePublisher(ctx, cfg.Queue, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create publisher: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < o.count; i++ {
		correlationID := uuid.NewString()
		id, err := pub.Publish(ctx, body, map[string]string{queue.AttrCorrelationID: correlationID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "publish %d/%d failed: %v\n", i+1, o.count, err)
			os.Exit(1)
		}
		fmt.Printf("published %s (correlation %s)\n", id, correlationID)
	}
}

func seedUser(ctx context.Context, cfg storage.Config, u storage.User, log zerolog.Logger) error {
	if cfg.URL == "" {
		return fmt.Errorf("database.url is not configured")
	}
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return bootstrap.SeedUsers(ctx, storage.NewUserRepository(db), log, u)
}

// encode renders payload in one of the body shapes the decoder accepts.
func encode(p notification.Payload, shape string) (string, error) {
	inner, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	var v any
	switch shape {
	case "raw":
		v = map[string]json.RawMessage{"payload": inner}
	case "envelope":
		v = map[string]any{
			"Type":      "Notification",
			"MessageId": uuid.NewString(),
			"Message":   string(inner),
		}
	case "bare":
		return string(inner), nil
	default:
		return "", fmt.Errorf("unknown shape %q", shape)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	return string(b), nil
}
