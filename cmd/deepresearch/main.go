package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/lexops/deepresearch"
	"github.com/lexops/deepresearch/config"
	"github.com/lexops/deepresearch/research"
	"github.com/lexops/deepresearch/workflow"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (optional)")
		model      = flag.String("model", "", "model name passed to the pipeline")
		query      = flag.String("query", "", "user query to research")
	)
	flag.Parse()
	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: deepresearch -query <question> [-model <name>] [-config <file>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	client := deepresearch.New(cfg, deepresearch.WithLogger(logger))
	defer client.Close()

	ctx := context.Background()
	wc := client.Research(ctx, *model, nil, *query, workflow.ListenerFuncs[*research.Result]{
		Logger: logger,
		Next:   printDelta,
	})

	// First interrupt cancels the run cooperatively; the partial result
	// still resolves below.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("interrupt received, cancelling run")
		wc.Cancel()
	}()

	result, err := wc.Get(ctx)
	if err != nil {
		logger.Fatal("research failed", zap.Error(err))
	}

	fmt.Println()
	printSummary(result)
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		lvl, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

func printDelta(r *research.Result) {
	switch {
	case r.SelfQuery != nil:
		fmt.Printf("[self-query] %s (base date %d)\n", r.SelfQuery.SemanticQuery, r.SelfQuery.BaseDate)
	case r.SearchQuery != "":
		fmt.Printf("[search query] %s\n", r.SearchQuery)
	case len(r.Flows()) > 0:
		for _, f := range r.Flows() {
			info := f.Info()
			switch {
			case len(info.ExpandedQueries) > 0:
				fmt.Printf("[flow %d] searching: %s\n", info.Index, strings.Join(info.ExpandedQueries, ", "))
			case info.DocumentCount != nil:
				fmt.Printf("[flow %d] %d documents\n", info.Index, *info.DocumentCount)
			case info.Sufficiency != "":
				fmt.Printf("[flow %d] verdict: %s\n", info.Index, info.Sufficiency)
			}
		}
	case r.Reason != "":
		fmt.Print(r.Reason)
	case r.Plan != "":
		fmt.Print(r.Plan)
	}
}

func printSummary(r *research.Result) {
	docs := r.AllDocuments()
	fmt.Printf("flows: %d, documents: %d, sufficiency: %s\n", len(r.Flows()), len(docs), r.Sufficiency)
	for _, d := range docs {
		line := d.ID()
		if t := d.Title(); t != "" {
			line += "  " + t
		}
		if u := d.URL(); u != "" {
			line += "  " + u
		}
		fmt.Println("  -", line)
	}
}
