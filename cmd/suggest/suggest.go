package suggest

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/datastore"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/suggest"
)

// Command creates the command turning classifier predictions into
// model-generated annotations.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		taskID       int64
		threshold    float64
		silenceLabel string
	)

	cmd := &cobra.Command{
		Use:   "suggest <predictions.yaml|json>",
		Short: "Import classifier predictions as suggestions",
		Long: "Merges per-chunk predictions into labeled segments. With --task the segments are " +
			"appended to the task in the configured database, otherwise they are printed as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := suggest.Config{
				Threshold:    settings.Suggest.Threshold,
				SilenceLabel: settings.Suggest.SilenceLabel,
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Threshold = threshold
			}
			if cmd.Flags().Changed("silence-label") {
				cfg.SilenceLabel = silenceLabel
			}

			preds, err := suggest.Load(args[0])
			if err != nil {
				return err
			}
			records := suggest.Records(suggest.Merge(preds, cfg), cfg)

			if taskID == 0 {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Global().Module("suggest").Warn("failed to close datastore", logger.Error(err))
				}
			}()

			n, err := store.AppendAnnotations(cmd.Context(), annotation.ID(taskID), records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d suggestions to task %d\n", n, taskID)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&taskID, "task", "t", 0, "Append the suggestions to this task")
	cmd.Flags().Float64Var(&threshold, "threshold", suggest.DefaultThreshold, "Confidence below which a chunk becomes silence")
	cmd.Flags().StringVar(&silenceLabel, "silence-label", suggest.DefaultSilenceLabel, "Label of low-confidence chunks")

	return cmd
}
