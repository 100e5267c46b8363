// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/snapq/config"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/ingestion"
	"github.com/poiesic/snapq/reembed"
)

func tenantFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "tenant",
		Aliases:  []string{"t"},
		Usage:    "Tenant ID",
		Required: required,
	}
}

func sourceFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "source",
		Aliases:  []string{"s"},
		Usage:    "Source ID of the document",
		Required: required,
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest one file synchronously",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			tenantFlag(true),
			sourceFlag(false),
			&cli.StringFlag{
				Name:  "title",
				Usage: "Title reported in search hits (defaults to the file name)",
			},
		},
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("ingest takes exactly one FILE argument", 2)
	}
	path, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	source := c.String("source")
	if source == "" {
		source = filepath.Base(path)
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	pipeline, err := kb.NewPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	doc, err := pipeline.Ingest(c.Context, ingestion.Request{
		TenantID: c.String("tenant"),
		SourceID: source,
		Filename: filepath.Base(path),
		Location: path,
		Title:    c.String("title"),
	})
	if doc != nil {
		if perr := printJSON(c, doc); perr != nil {
			return perr
		}
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("ingestion failed: %v", err), 1)
	}
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the lifecycle state of a document",
		Flags: []cli.Flag{tenantFlag(true), sourceFlag(true)},
		Action: func(c *cli.Context) error {
			kb, err := openKnowledgeBase(c)
			if err != nil {
				return err
			}
			defer kb.Close()

			doc, err := kb.Status(c.Context, c.String("tenant"), c.String("source"))
			if err != nil {
				return err
			}
			return printJSON(c, doc)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List documents",
		Flags: []cli.Flag{
			tenantFlag(false),
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show documents in this state (queued, processing, completed, failed)",
			},
		},
		Action: func(c *cli.Context) error {
			var status core.DocumentStatus
			if s := c.String("status"); s != "" {
				var err error
				if status, err = core.ParseStatus(s); err != nil {
					return err
				}
			}

			kb, err := openKnowledgeBase(c)
			if err != nil {
				return err
			}
			defer kb.Close()

			docs, err := kb.Documents(c.Context, c.String("tenant"), status)
			if err != nil {
				return err
			}
			if docs == nil {
				docs = []*core.Document{}
			}
			return printJSON(c, docs)
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the chunks most similar to a query",
		ArgsUsage: "QUERY...",
		Flags: []cli.Flag{
			tenantFlag(true),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of hits (0 uses search.default_limit)",
			},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return cli.Exit("search needs a QUERY", 2)
			}

			kb, err := openKnowledgeBase(c)
			if err != nil {
				return err
			}
			defer kb.Close()

			searcher, err := kb.NewSearcher()
			if err != nil {
				return err
			}
			hits, err := searcher.Search(c.Context, c.String("tenant"), query, c.Int("limit"))
			if err != nil {
				return err
			}
			return printJSON(c, hits)
		},
	}
}

func retryCommand() *cli.Command {
	return &cli.Command{
		Name:  "retry",
		Usage: "Run a new attempt for a completed or failed document",
		Flags: []cli.Flag{tenantFlag(true), sourceFlag(true)},
		Action: func(c *cli.Context) error {
			kb, err := openKnowledgeBase(c)
			if err != nil {
				return err
			}
			defer kb.Close()

			pipeline, err := kb.NewPipeline()
			if err != nil {
				return err
			}
			defer pipeline.Release()

			if _, err := pipeline.Retry(c.Context, c.String("tenant"), c.String("source")); err != nil {
				return err
			}
			pipeline.Wait()

			doc, err := kb.Status(c.Context, c.String("tenant"), c.String("source"))
			if err != nil {
				return err
			}
			return printJSON(c, doc)
		},
	}
}

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Ingest requests read as JSON lines from stdin",
		Description: `Each line is an object with tenant_id, source_id, filename and
file_location, plus an optional title. Requests are queued on the worker
pool; the command exits once input ends and every queued attempt finished.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "recover",
				Usage: "Recover interrupted documents before reading input",
			},
		},
		Action: workerAction,
	}
}

// workerSummary is printed when the worker exits.
type workerSummary struct {
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Recovered int `json:"recovered,omitempty"`
}

func workerAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	pipeline, err := kb.NewPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	var summary workerSummary
	if c.Bool("recover") {
		report, err := pipeline.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recovery failed: %w", err)
		}
		summary.Recovered = report.Interrupted + report.Requeued
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.App.Reader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

read:
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker interrupted, waiting for running attempts")
			break read
		case line, ok := <-lines:
			if !ok {
				break read
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := submitLine(ctx, pipeline, line); err != nil {
				slog.Warn("request rejected", "err", err)
				summary.Rejected++
				continue
			}
			summary.Submitted++
		}
	}

	pipeline.Wait()
	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("failed to read requests: %w", err)
		}
	default:
	}
	return printJSON(c, summary)
}

func submitLine(ctx context.Context, pipeline *ingestion.Pipeline, line string) error {
	var req ingestion.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return fmt.Errorf("%w: %w", ingestion.ErrInvalidRequest, err)
	}
	job, err := pipeline.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", req.TenantID, req.SourceID, err)
	}
	slog.Debug("request queued", "tenant", job.TenantID, "source", job.SourceID, "job", job.ID.String())
	return nil
}

func recoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "recover",
		Usage: "Fail documents interrupted by a crash and resubmit queued ones",
		Description: `Run only while no other process is ingesting into the same store:
every processing document is assumed to be abandoned.`,
		Action: func(c *cli.Context) error {
			kb, err := openKnowledgeBase(c)
			if err != nil {
				return err
			}
			defer kb.Close()

			pipeline, err := kb.NewPipeline()
			if err != nil {
				return err
			}
			defer pipeline.Release()

			report, err := pipeline.Recover(c.Context)
			if err != nil {
				return err
			}
			pipeline.Wait()
			return printJSON(c, report)
		},
	}
}

func reembedCommand() *cli.Command {
	defaults := reembed.DefaultConfig()
	return &cli.Command{
		Name:  "reembed",
		Usage: "Recompute every chunk vector with the configured embedding model",
		Description: `Stop ingestion first. The run can be interrupted and restarted:
documents already in the new embedding space are skipped. The store
switches to the new space once every tenant has been migrated.`,
		Flags: []cli.Flag{
			tenantFlag(false),
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks sent per embedding call",
				Value: defaults.BatchSize,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: defaults.ReportInterval,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per embedding call",
				Value: defaults.MaxRetries,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: defaults.RetryDelay,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-embed documents already in the target space",
			},
		},
		Action: reembedAction,
	}
}

func reembedAction(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		TenantID:       c.String("tenant"),
		Force:          c.Bool("force"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	kb, err := openKnowledgeBase(c)
	if err != nil {
		return err
	}
	defer kb.Close()

	space := kb.Embedder().Space()
	fmt.Fprintf(c.App.ErrWriter, "Store: %s (%s)\n", kb.Config().Storage.Path, kb.Config().Storage.Driver)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s (%d dimensions)\n", space.Model, space.Dimension)
	fmt.Fprintln(c.App.ErrWriter)

	r, err := kb.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}
	report, err := r.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return printJSON(c, report)
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the default configuration to --config",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return cli.Exit(fmt.Sprintf("%s already exists, use --force to overwrite", path), 1)
					} else if err != nil && !errors.Is(err, os.ErrNotExist) {
						return err
					}
					if err := config.Save(path, config.Default()); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if cfg.Embedding.Token != "" {
						cfg.Embedding.Token = "********"
					}
					enc := yaml.NewEncoder(c.App.Writer)
					enc.SetIndent(2)
					if err := enc.Encode(cfg); err != nil {
						return err
					}
					return enc.Close()
				},
			},
		},
	}
}

// reportJSON mirrors reembed.Report with stable field names.
type reportJSON struct {
	Documents int                 `json:"documents"`
	Chunks    int                 `json:"chunks"`
	Skipped   int                 `json:"skipped"`
	Space     core.EmbeddingSpace `json:"space"`
	Elapsed   string              `json:"elapsed"`
}

func printJSON(c *cli.Context, v any) error {
	switch r := v.(type) {
	case *reembed.Report:
		v = reportJSON{r.Documents, r.Chunks, r.Skipped, r.Space, r.Elapsed.Round(time.Millisecond).String()}
	case ingestion.RecoveryReport:
		v = map[string]int{"interrupted": r.Interrupted, "requeued": r.Requeued}
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
