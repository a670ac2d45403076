package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

const version = "1.0.0"

var (
	serverURL    string
	patientName  string
	medicalNotes string
	historyPairs []string
)

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "aictl",
	Short:   "Dental clinic AI assistant CLI",
	Version: version,
	Long: `A command-line client for the dental clinic AI service. Sends chat
requests over HTTP (blocking or streamed) or through the Redis request queue,
and checks service health.`,
	Example: `  # Ask a blocking question
  $ aictl generate -p "Jane Doe" "How often should I floss?"

  # Stream the answer as it is generated
  $ aictl stream -p "Jane Doe" --notes "Allergic to penicillin" "Is a root canal painful?"

  # Go through the queue, like the clinic backend does
  $ aictl submit -p "Jane Doe" "What should I eat after an extraction?"

  # Check the service
  $ aictl health`,
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("AI_SERVICE_URL", "http://localhost:8001"), "AI service base URL")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(healthCmd)
}

// addChatFlags registers the patient context flags shared by chat commands.
func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&patientName, "patient", "p", "", "patient name (required)")
	cmd.Flags().StringVar(&medicalNotes, "notes", "", "medical notes")
	cmd.Flags().StringArrayVar(&historyPairs, "history", nil, `prior turn as "user:text" or "assistant:text" (repeatable, oldest first)`)
	cmd.MarkFlagRequired("patient")
	cmd.SilenceUsage = true
}

func buildChatRequest(args []string) (*models.ChatRequest, error) {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	req := &models.ChatRequest{
		Message:     message,
		PatientName: patientName,
	}
	if medicalNotes != "" {
		notes := medicalNotes
		req.MedicalNotes = &notes
	}

	history, err := parseHistory(historyPairs)
	if err != nil {
		return nil, err
	}
	req.ChatHistory = history
	return req, nil
}

func parseHistory(pairs []string) ([]models.ChatHistoryItem, error) {
	items := make([]models.ChatHistoryItem, 0, len(pairs))
	for _, p := range pairs {
		role, content, ok := strings.Cut(p, ":")
		role = strings.ToLower(strings.TrimSpace(role))
		if !ok || (role != "user" && role != "assistant") {
			return nil, fmt.Errorf("invalid history entry %q: want user:<text> or assistant:<text>", p)
		}
		items = append(items, models.ChatHistoryItem{Role: role, Content: strings.TrimSpace(content)})
	}
	return items, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
