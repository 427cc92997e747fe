package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

func newEventCmd(opts *options, factory ServiceFactory) *cobra.Command {
	var file, eventType, delivery string
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Process a saved GitHub webhook payload",
		Long:  "Reads a push or pull_request payload from --file (\"-\" for stdin) and runs it through the same gate as the webhook endpoint.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			ev := mirror.Event{
				Attributes: map[string]string{mirror.EventTypeAttr: eventType},
				Body:       body,
			}
			if delivery != "" {
				ev.Attributes[mirror.DeliveryAttr] = delivery
			}
			return run(cmd, opts, factory, func(ctx context.Context, svc *mirror.Service) (*mirror.Run, error) {
				return svc.Reconcile(ctx, ev)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Payload file, or - for stdin")
	cmd.Flags().StringVar(&eventType, "event", "push", "GitHub event type of the payload")
	cmd.Flags().StringVar(&delivery, "delivery", "", "Delivery ID used for duplicate suppression")
	return cmd
}

func readPayload(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return body, nil
}
