/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blacktop/xpublish/internal/config"
	"github.com/blacktop/xpublish/internal/history"
	"github.com/blacktop/xpublish/internal/logutil"
	"github.com/blacktop/xpublish/internal/publish"
	"github.com/blacktop/xpublish/internal/publish/bluesky"
	"github.com/blacktop/xpublish/internal/publish/discord"
	"github.com/blacktop/xpublish/internal/publish/mastodon"
	"github.com/blacktop/xpublish/internal/publish/reddit"
	"github.com/blacktop/xpublish/internal/publish/telegram"
	"github.com/blacktop/xpublish/internal/publish/twitter"
	"github.com/blacktop/xpublish/internal/translate"
)

var (
	messageFlag    string
	mediaPaths     []string
	mediaAlt       string
	targetsFlag    []string
	payloadPath    string
	translateFlag  bool
	isolateFlag    bool
	parallelFlag   bool
	retriesFlag    int
	idempotencyKey string
	dryRun         bool
	jsonOutput     bool
	verboseFlag    bool
)

// ErrDispatchFailed is returned once a failed dispatch has been reported.
var ErrDispatchFailed = errors.New("dispatch failed")

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xpublish [message]",
		Short: "Publish one post to many platforms",
		Long: "xpublish sends the same post to Telegram, Discord, X, Reddit, Mastodon and Bluesky. " +
			"Provide the text as an argument, with --message, on stdin, or as a JSON payload with --payload.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logutil.SetOutput(cmd.ErrOrStderr())
			logutil.SetVerbose(verboseFlag)
		},
		RunE: runRoot,
		Example: `  xpublish --message "hello world" --media ./shot.png --target telegram --target discord
  xpublish "Ship it!" --target all --isolate --parallel
  xpublish --payload post.json --json
  echo "Release shipped" | xpublish --target x --retries 3`,
	}

	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "V", false, "Enable debug logging")

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringArrayVar(&mediaPaths, "media", nil, "Path to an image or video to attach (repeatable)")
	cmd.Flags().StringVar(&mediaAlt, "alt-text", "", "Alternative text for the attached media")
	cmd.Flags().StringSliceVar(&targetsFlag, "target", nil, "Platforms to post to (telegram, discord, x, reddit, mastodon, bluesky, or all)")
	cmd.Flags().StringVar(&payloadPath, "payload", "", "Read a JSON payload from a file (- for stdin)")
	cmd.Flags().BoolVar(&translateFlag, "translate", false, "Translate the text with Gemini before posting")
	cmd.Flags().BoolVar(&isolateFlag, "isolate", false, "Attempt every platform even when one fails")
	cmd.Flags().BoolVar(&parallelFlag, "parallel", false, "Post to platforms concurrently (implies --isolate)")
	cmd.Flags().IntVar(&retriesFlag, "retries", 0, "Total attempts per platform for transport failures (default from XPUBLISH_RETRIES)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Skip platforms that already received a post with this key")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the dispatch result as JSON")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newCompletionCommand())
	cmd.AddCommand(newTranslateCommand())
	cmd.AddCommand(newHistoryCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if jsonOutput {
		logutil.SetQuiet(true)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	payload, err := buildPayload(cmd, args, cfg)
	if err != nil {
		return err
	}

	if translateFlag {
		translator, err := translate.NewGemini(ctx, cfg.Translate)
		if err != nil {
			return err
		}
		translated, err := translator.Translate(ctx, payload.Text)
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		payload.Text = translated
	}

	if dryRun {
		return printDryRun(cmd.OutOrStdout(), payload)
	}

	retry := cfg.Retry
	if cmd.Flags().Changed("retries") {
		retry.Attempts = retriesFlag
	}

	publishers, closers := buildPublishers(ctx, cfg, payload, retry)
	defer closeAll(closers)

	opts := []publish.Option{}
	if isolateFlag || parallelFlag {
		opts = append(opts, publish.WithPolicy(publish.PolicyIsolate), publish.WithConcurrency(parallelFlag))
	}
	if payload.IdempotencyKey != "" {
		ledger, closeLedger := openLedger(ctx, cfg.HistoryPath)
		defer closeLedger()
		opts = append(opts, publish.WithLedger(ledger))
	}

	result := publish.NewDispatcher(publishers, opts...).Dispatch(ctx, payload)
	if err := writeResult(cmd.OutOrStdout(), result, jsonOutput); err != nil {
		return err
	}
	if !result.OK {
		return ErrDispatchFailed
	}
	return nil
}

// buildPayload assembles the post from --payload or from the message flags.
// Explicit --target and --idempotency-key values override the payload's.
func buildPayload(cmd *cobra.Command, args []string, cfg *config.Config) (publish.PostPayload, error) {
	var payload publish.PostPayload

	if payloadPath != "" {
		if messageFlag != "" || len(args) > 0 || len(mediaPaths) > 0 {
			return payload, errors.New("--payload cannot be combined with a message or --media")
		}
		data, err := readPayloadFile(cmd, payloadPath)
		if err != nil {
			return payload, err
		}
		if payload, err = publish.DecodePayload(data); err != nil {
			return payload, err
		}
	} else {
		message, err := resolveMessage(cmd, args)
		if err != nil {
			return payload, err
		}
		payload.Text = message
		for _, path := range mediaPaths {
			m, err := publish.NewMediaDescriptor(path)
			if err != nil {
				return payload, err
			}
			m.AltText = strings.TrimSpace(mediaAlt)
			payload.Media = append(payload.Media, m)
		}
	}

	if len(targetsFlag) > 0 || payloadPath == "" {
		targets, err := normalizeTargets(targetsFlag, configuredPlatforms(cfg))
		if err != nil {
			return payload, err
		}
		payload.Targets = make(map[publish.Platform]bool, len(targets))
		for _, p := range targets {
			payload.Targets[p] = true
		}
	}

	if key := strings.TrimSpace(idempotencyKey); key != "" {
		payload.IdempotencyKey = key
	}
	return payload, nil
}

func readPayloadFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read payload from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	message, err := readStdin(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	if message == "" && len(mediaPaths) == 0 {
		return "", errors.New("message is required")
	}

	return message, nil
}

// readStdin returns piped input, or nothing when stdin is a terminal.
func readStdin(stdin io.Reader) (string, error) {
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// normalizeTargets resolves --target values in dispatch order. With no
// values, every platform that has credentials is selected.
func normalizeTargets(values []string, configured []publish.Platform) ([]publish.Platform, error) {
	if len(values) == 0 {
		if len(configured) == 0 {
			return nil, errors.New("no platforms configured; set credentials or pass --target")
		}
		return configured, nil
	}

	seen := map[publish.Platform]bool{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return publish.Platforms(), nil
		}
		platform, ok := publish.ParsePlatform(raw)
		if !ok {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		seen[platform] = true
	}

	if len(seen) == 0 {
		return nil, errors.New("no targets selected")
	}

	result := make([]publish.Platform, 0, len(seen))
	for _, p := range publish.Platforms() {
		if seen[p] {
			result = append(result, p)
		}
	}
	return result, nil
}

func configuredPlatforms(cfg *config.Config) []publish.Platform {
	var out []publish.Platform
	for _, p := range publish.Platforms() {
		if cfg.Validate(p) == nil {
			out = append(out, p)
		}
	}
	return out
}

// unavailablePublisher reports why a platform could not be set up. The
// dispatcher surfaces the error like any other adapter failure.
type unavailablePublisher struct {
	platform publish.Platform
	err      error
}

func (u unavailablePublisher) Platform() publish.Platform { return u.platform }

func (u unavailablePublisher) Publish(context.Context, publish.PostPayload) (publish.Result, error) {
	return publish.Result{}, u.err
}

// buildPublishers returns one publisher per requested platform, plus the
// sessions that must be closed once the dispatch is done.
func buildPublishers(ctx context.Context, cfg *config.Config, payload publish.PostPayload, retry publish.RetryConfig) ([]publish.Publisher, []io.Closer) {
	constructors := map[publish.Platform]func(context.Context) (publish.Publisher, error){
		publish.Telegram: func(ctx context.Context) (publish.Publisher, error) {
			return telegram.New(ctx, cfg.Telegram)
		},
		publish.Discord: func(ctx context.Context) (publish.Publisher, error) {
			return discord.New(ctx, cfg.Discord)
		},
		publish.X: func(ctx context.Context) (publish.Publisher, error) {
			return twitter.New(ctx, cfg.X)
		},
		publish.Reddit: func(context.Context) (publish.Publisher, error) {
			return reddit.New(cfg.Reddit)
		},
		publish.Mastodon: func(context.Context) (publish.Publisher, error) {
			return mastodon.New(cfg.Mastodon)
		},
		publish.Bluesky: func(ctx context.Context) (publish.Publisher, error) {
			return bluesky.New(ctx, cfg.Bluesky)
		},
	}

	publishers := make([]publish.Publisher, 0, len(payload.Targets))
	var closers []io.Closer
	for _, platform := range publish.Platforms() {
		if !payload.Wants(platform) {
			continue
		}
		if err := cfg.Validate(platform); err != nil {
			publishers = append(publishers, unavailablePublisher{platform: platform, err: err})
			continue
		}
		pub, err := constructors[platform](ctx)
		if err != nil {
			logutil.Warnf("%s: %v", platform, err)
			publishers = append(publishers, unavailablePublisher{platform: platform, err: publish.Transport(platform, err)})
			continue
		}
		if closer, ok := pub.(io.Closer); ok {
			closers = append(closers, closer)
		}
		publishers = append(publishers, publish.WithRetry(pub, retry))
	}
	return publishers, closers
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logutil.Debugf("close session: %v", err)
		}
	}
}

// openLedger prefers the on-disk history so keys survive across runs.
func openLedger(ctx context.Context, path string) (publish.Ledger, func()) {
	store, err := history.Open(ctx, path)
	if err == nil {
		return store, func() { store.Close() }
	}
	logutil.Warnf("history unavailable, idempotency limited to this run: %v", err)
	mem, _ := publish.NewMemoryLedger(0)
	return mem, func() {}
}

func printDryRun(out io.Writer, payload publish.PostPayload) error {
	for _, p := range publish.Platforms() {
		if payload.Wants(p) {
			fmt.Fprintf(out, "[dry-run] would post to %s: %q\n", p, payload.Text)
		}
	}
	for _, m := range payload.Media {
		fmt.Fprintf(out, "[dry-run] %s: %s (%s, %d bytes, alt: %q)\n", m.Kind, m.UploadName(), m.MIMEType, m.SizeBytes, m.AltText)
	}
	if payload.IdempotencyKey != "" {
		fmt.Fprintf(out, "[dry-run] idempotency key: %s\n", payload.IdempotencyKey)
	}
	return nil
}

func writeResult(out io.Writer, result publish.DispatchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for _, p := range publish.Platforms() {
		if res, ok := result.Results[p]; ok {
			line := fmt.Sprintf("posted to %s", p)
			if res.MessageID != "" {
				line += " (" + res.MessageID + ")"
			}
			if res.URL != "" {
				line += " " + res.URL
			}
			if res.Replayed {
				line += " [already posted]"
			}
			fmt.Fprintln(out, line)
		}
		if f, ok := result.Failures[p]; ok {
			fmt.Fprintf(out, "failed on %s [%s]: %s\n", p, f.Kind, f.Reason)
		}
	}
	if !result.OK && len(result.Failures) == 0 {
		fmt.Fprintf(out, "dispatch failed [%s]: %s\n", result.ErrorKind, result.Error)
	}
	return nil
}
