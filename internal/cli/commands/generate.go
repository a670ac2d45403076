package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maverickkhan/dental-clinic-assistant/internal/cli/client"
	"github.com/maverickkhan/dental-clinic-assistant/internal/cli/ui"
	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

var generateTimeout time.Duration

// generateCmd sends one blocking chat request
var generateCmd = &cobra.Command{
	Use:   "generate [message]",
	Short: "get a whole response from POST /chat/generate",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

// streamCmd prints a streamed response as it arrives
var streamCmd = &cobra.Command{
	Use:   "stream [message]",
	Short: "stream a response from POST /chat/stream",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStream,
}

// healthCmd checks the service
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "show service identity and dependency checks",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	addChatFlags(generateCmd)
	addChatFlags(streamCmd)
	generateCmd.Flags().DurationVar(&generateTimeout, "timeout", 90*time.Second, "request timeout")
	streamCmd.Flags().DurationVar(&generateTimeout, "timeout", 90*time.Second, "stream timeout")
	healthCmd.SilenceUsage = true
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildChatRequest(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), generateTimeout)
	defer cancel()

	result, err := client.NewAPIClient(serverURL, generateTimeout).Generate(ctx, req)
	if err != nil {
		ui.PrintError("generation failed: %v", err)
		return err
	}

	ui.PrintResponse(result.Response, result.EmergencyDetected)
	ui.PrintMetadata(result.Metadata)
	return nil
}

func runStream(cmd *cobra.Command, args []string) error {
	req, err := buildChatRequest(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), generateTimeout)
	defer cancel()

	for ev, err := range client.NewAPIClient(serverURL, generateTimeout).Stream(ctx, req) {
		if err != nil {
			ui.PrintError("stream failed: %v", err)
			return err
		}
		switch ev.Type {
		case models.EventChunk:
			ui.PrintChunk(ev.Text)
		case models.EventEmergency:
			ui.PrintResponse(ev.Text, true)
		case models.EventDone:
			fmt.Fprintln(ui.Out)
			ui.PrintMetadata(ev.Metadata)
			return nil
		case models.EventError:
			fmt.Fprintln(ui.Out)
			ui.PrintError("%s", ev.Message)
			return fmt.Errorf("stream ended with error")
		}
	}

	ui.PrintWarning("stream closed without a terminal event")
	return fmt.Errorf("incomplete stream")
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	health, err := client.NewAPIClient(serverURL, 10*time.Second).Health(ctx)
	if err != nil {
		ui.PrintError("health check failed: %v", err)
		return err
	}

	if health.Status == "healthy" {
		ui.PrintSuccess("%s is %s (model %s)", health.Service, health.Status, health.Model)
	} else {
		ui.PrintWarning("%s is %s (model %s)", health.Service, health.Status, health.Model)
	}
	for name, state := range health.Checks {
		ui.PrintInfo("%s: %s", name, state)
	}
	return nil
}
