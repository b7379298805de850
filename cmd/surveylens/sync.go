// Sync command for the surveylens CLI.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/syncer"
)

var (
	flagSyncEndpoint string
	flagSyncDryRun   bool
)

func init() {
	syncCmd.Flags().StringVar(&flagSyncEndpoint, "endpoint", "", "submission endpoint URL (default: sync_endpoint from config.yaml)")
	syncCmd.Flags().BoolVar(&flagSyncDryRun, "dry-run", false, "list what would be uploaded without sending anything")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload pending submissions",
	Long: `Sync drains the submission queue against the configured endpoint.
Entries that fail stay in the queue with their error recorded and are
retried on the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, "sync:", err)
			os.Exit(exitSysError)
		}
		defer app.close()

		if flagSyncDryRun {
			pending, err := app.queue.Pending()
			if err != nil {
				return fmt.Errorf("read queue: %w", err)
			}
			return emit(pending, func() {
				for _, e := range pending {
					fmt.Printf("%s\t%s\t%s\tretries=%d\n", e.InstanceID, e.FormID, e.Status, e.RetryCount)
				}
			})
		}

		endpoint := flagSyncEndpoint
		if endpoint == "" {
			endpoint = configSyncEndpoint
		}
		if endpoint == "" {
			return fmt.Errorf("no endpoint: pass --endpoint or set sync_endpoint in config.yaml")
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}

		driver := syncer.New(app.queue, app.store, &httpUploader{
			endpoint: endpoint,
			client:   &http.Client{Timeout: 30 * time.Second},
		}, syncer.DefaultConfig(), nil)

		res, err := driver.Drain(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}

		fmt.Printf("Sync finished: %d attempted, %d delivered, %d failed\n",
			res.Attempted, res.Delivered, res.Failed)
		if res.Failed > 0 {
			os.Exit(exitUserError)
		}
		return nil
	},
}

// httpUploader posts instance payloads to a collection server.
type httpUploader struct {
	endpoint string
	client   *http.Client
}

func (u *httpUploader) Upload(ctx context.Context, formID, instanceID string, payload []byte) error {
	target := fmt.Sprintf("%s/forms/%s/instances/%s",
		u.endpoint, url.PathEscape(formID), url.PathEscape(instanceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
