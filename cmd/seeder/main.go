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
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/poiesic/snapq"
	"github.com/poiesic/snapq/config"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/extraction"
	"github.com/poiesic/snapq/ingestion"
)

var (
	configFile = flag.String("config", "snapq.yaml", "path to YAML config file")
	tenantID   = flag.String("tenant", "", "tenant to ingest into")
	srcDir     = flag.String("src", ".", "directory to ingest recursively")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// filesFromDir returns an iterator over the regular files under root that
// the extractor has strategies for. Hidden directories are skipped.
func filesFromDir(root string, extractor *extraction.Extractor) iter.Seq[string] {
	return func(yield func(string) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && d.Name()[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !extractor.Supports(path) {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			slog.Error("error walking source directory", "dir", root, "err", err)
		}
	}
}

// sourceID names a file by its path relative to root, so re-running the
// seeder refreshes documents instead of duplicating them.
func sourceID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// ingestAll queues every file and waits for the attempts to finish.
func ingestAll(ctx context.Context, pipeline *ingestion.Pipeline, tenant, root string, files iter.Seq[string]) (int, error) {
	queued := 0
	for path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			return queued, err
		}
		_, err = pipeline.Submit(ctx, ingestion.Request{
			TenantID: tenant,
			SourceID: sourceID(root, path),
			Filename: filepath.Base(path),
			Location: abs,
		})
		if errors.Is(err, core.ErrDuplicateSource) {
			slog.Warn("document is already being ingested", "path", path)
			continue
		}
		if err != nil {
			return queued, err
		}
		queued++
	}
	pipeline.Wait()
	return queued, nil
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	if *tenantID == "" {
		fmt.Fprintln(os.Stderr, "usage: seeder -tenant ID [-src DIR] [-config FILE]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}
	kb, err := snapq.Open(cfg)
	if err != nil {
		panic(err)
	}
	defer kb.Close()

	ingester, err := kb.NewPipeline()
	if err != nil {
		panic(err)
	}
	defer ingester.Release()

	ctx := context.Background()
	queued, err := ingestAll(ctx, ingester, *tenantID, *srcDir, filesFromDir(*srcDir, kb.Extractor()))
	if err != nil {
		panic(err)
	}

	failed, err := kb.Documents(ctx, *tenantID, core.StatusFailed)
	if err != nil {
		panic(err)
	}
	for _, doc := range failed {
		slog.Warn("ingestion failed", "source", doc.SourceID, "error", doc.ErrorMessage)
	}
	slog.Info("seeding finished", "queued", queued, "failed", len(failed))
}
