package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/app"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/replay"
)

const closeTimeout = 5 * time.Second

// Command creates the command applying an edit script to a stored task
func Command(settings *conf.Settings) *cobra.Command {
	var (
		taskID  int64
		status  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Apply an edit script to a task",
		Long: "Loads a task from the annotation store, hydrates its annotations, applies the " +
			"steps of the script and optionally saves. The resulting annotation list is printed as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := replay.LoadScript(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("task") {
				script.Task = annotation.ID(taskID)
			}
			if cmd.Flags().Changed("save") {
				script.Save = status
				if err := script.Validate(); err != nil {
					return err
				}
			}
			if script.Task == 0 {
				return fmt.Errorf("no task given, set task in the script or use --task")
			}
			if cmd.Flags().Changed("remote") {
				settings.Remote.BaseURL = baseURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := app.NewServices(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(closeTimeout) }()

			sess, err := app.NewSession(settings, svc)
			if err != nil {
				return err
			}
			defer sess.Close(closeTimeout)

			if err := sess.Load(ctx, svc, script.Task); err != nil {
				return err
			}

			res, runErr := replay.NewRunner(sess.Workspace, sess.Engine).Run(ctx, script)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "applied %d steps, %d failed\n", res.Applied, res.Failed)
			if res.Saved != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "saved %d annotations as %q, %d withheld\n",
					res.Saved.Sent, res.Saved.Status, res.Saved.Withheld)
			}
			return runErr
		},
	}

	cmd.Flags().Int64VarP(&taskID, "task", "t", 0, "Task id, overrides the script")
	cmd.Flags().StringVar(&status, "save", "", "Save with this task status after replay (New, In Progress, Completed)")
	cmd.Flags().StringVar(&baseURL, "remote", "", "Annotation store API URL, overrides remote.baseurl")

	return cmd
}
