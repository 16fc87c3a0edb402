// bk-fetch fetches a paginated resource from the Buildkite API and prints the
// accumulated entries as a JSON array on stdout.
//
// The bearer token is read from BUILDKITE_CI_API_KEY or BUILDKITE_TOKEN.
// All flags can also be set via BK_FETCH_* environment variables
// (e.g. BK_FETCH_MAX_FETCHES=5).
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"

	"github.com/buildsight/buildkite-client/pkg/client"
	"github.com/buildsight/buildkite-client/pkg/logging"
	"github.com/buildsight/buildkite-client/pkg/pagination"
	"github.com/buildsight/buildkite-client/pkg/ratelimit"
)

var rootCmd = &cobra.Command{
	Use:   "bk-fetch <resource-path>",
	Short: "Fetch a paginated resource from the Buildkite API",
	Long: `bk-fetch walks a paginated Buildkite REST API resource page by page and
prints the accumulated entries as a JSON array.

Examples:
  bk-fetch organizations/acme/pipelines/deploy/builds
  bk-fetch organizations/acme/builds -p branch=main -p state=failed --max-fetches 3

On a rate limit response the entries fetched so far are still printed and the
command exits non-zero, so callers can keep the partial data and resume later.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("base-url", client.DefaultBaseURL, "API base URL")
	rootCmd.Flags().StringSliceP("param", "p", nil, "query parameter as key=value (repeatable)")
	rootCmd.Flags().Int("max-fetches", 0, "maximum number of page requests (0 = unlimited)")
	rootCmd.Flags().Int("first-page", 1, "page number to start from")
	rootCmd.Flags().String("redis", "", "redis address for shared rate limit state (optional)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("pretty-logs", false, "human-readable log output instead of JSON")

	viper.SetEnvPrefix("BK_FETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		panic(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(viper.GetString("log-level")),
		Pretty: viper.GetBool("pretty-logs"),
		Output: os.Stderr,
	})

	params, err := parseParams(viper.GetStringSlice("param"))
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if addr := viper.GetString("redis"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
		if err := redisClient.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
	}
	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))

	cfg := client.DefaultConfig()
	cfg.BaseURL = viper.GetString("base-url")
	cfg.Tracker = tracker

	bk, err := client.New(cfg)
	if err != nil {
		return err
	}

	fetcher := pagination.NewFetcher(bk)
	results, err := fetcher.FetchAll(cmd.Context(), args[0], params, pagination.Options{
		MaxFetches: viper.GetInt("max-fetches"),
		FirstPage:  viper.GetInt("first-page"),
	})
	if err != nil {
		var rateLimited *client.RateLimitedError
		if errors.As(err, &rateLimited) {
			// Emit what was fetched so the caller can decide to resume
			if writeErr := writeEntries(os.Stdout, rateLimited.Partial); writeErr != nil {
				return writeErr
			}
		}
		return err
	}

	return writeEntries(os.Stdout, results)
}

// parseParams converts repeated key=value flags into a parameter mapping.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// writeEntries prints the entries as an indented JSON array.
func writeEntries(w io.Writer, entries []gjson.Result) error {
	raw := make([]json.RawMessage, len(entries))
	for i, entry := range entries {
		raw[i] = json.RawMessage(entry.Raw)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(raw)
}
