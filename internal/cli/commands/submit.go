package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maverickkhan/dental-clinic-assistant/internal/cli/ui"
	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
	"github.com/maverickkhan/dental-clinic-assistant/internal/queue"
)

var (
	redisURL     string
	requestQueue string
	respPrefix   string
	awaitTimeout time.Duration
	noWait       bool
)

// submitCmd pushes a request onto the queue and waits for the worker's reply
var submitCmd = &cobra.Command{
	Use:   "submit [message]",
	Short: "send a request through the Redis queue",
	Long: `Push a QueuedRequest onto the request queue and wait for a worker to
publish the response to its mailbox. This is the same path the clinic backend
uses; it needs at least one running worker.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	addChatFlags(submitCmd)
	submitCmd.Flags().StringVar(&redisURL, "redis", envOr("REDIS_URL", "redis://localhost:6379"), "Redis URL")
	submitCmd.Flags().StringVar(&requestQueue, "queue", envOr("QUEUE_REQUESTS", queue.DefaultRequestQueue), "request queue name")
	submitCmd.Flags().StringVar(&respPrefix, "response-prefix", envOr("QUEUE_RESPONSE_PREFIX", queue.DefaultResponsePrefix), "response key prefix")
	submitCmd.Flags().DurationVar(&awaitTimeout, "timeout", 30*time.Second, "how long to wait for the response")
	submitCmd.Flags().BoolVar(&noWait, "no-wait", false, "print the request id and exit")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req, err := buildChatRequest(args)
	if err != nil {
		return err
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("invalid Redis URL: %w", err)
	}
	broker := queue.NewBroker(redis.NewClient(opt), queue.Options{
		RequestQueue:   requestQueue,
		ResponsePrefix: respPrefix,
	})
	defer broker.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), awaitTimeout+5*time.Second)
	defer cancel()

	id, err := broker.Submit(ctx, &models.QueuedRequest{ChatRequest: *req})
	if err != nil {
		ui.PrintError("enqueue failed: %v", err)
		return err
	}
	ui.PrintInfo("queued request %s", id)
	if noWait {
		fmt.Fprintln(ui.Out, id)
		return nil
	}

	resp, err := broker.Await(ctx, id, awaitTimeout)
	if errors.Is(err, queue.ErrTimeout) {
		ui.PrintError("no response within %s; is a worker running?", awaitTimeout)
		return err
	}
	if err != nil {
		ui.PrintError("waiting for response failed: %v", err)
		return err
	}

	if resp.Failed() {
		ui.PrintError("%s", resp.Error)
		return fmt.Errorf("request %s failed", id)
	}
	ui.PrintResponse(resp.Response, resp.EmergencyDetected)
	ui.PrintMetadata(resp.Metadata)
	return nil
}
