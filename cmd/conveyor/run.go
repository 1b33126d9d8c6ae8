package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/conveyor/internal/collection/memory"
	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/engine"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/metrics"
	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

type runOptions struct {
	pipelinePath string
	namespace    string
	runtimeArgs  []string
	partitions   int
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline against the in-memory backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.pipelinePath, "pipeline", "p", "", "Path to pipeline file")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck
	cmd.Flags().StringVar(&opts.namespace, "namespace", "default", "Pipeline namespace")
	cmd.Flags().StringArrayVar(&opts.runtimeArgs, "runtime-arg", nil, "Runtime argument as key=value (repeatable)")
	cmd.Flags().IntVar(&opts.partitions, "store-partitions", 1, "Partition count for sink writes")

	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootFlags, opts runOptions) error {
	level := root.logLevel
	if root.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{
		Level:         level,
		HumanReadable: term.IsTerminal(int(os.Stdout.Fd())),
	})
	if err != nil {
		return err
	}

	args, err := parseRuntimeArgs(opts.runtimeArgs)
	if err != nil {
		return err
	}

	pipeline, err := config.ParseFile(opts.pipelinePath)
	if err != nil {
		return err
	}

	registry, err := registerPlugins(log)
	if err != nil {
		return err
	}

	backend := &memory.Backend{Partitions: opts.partitions}
	runner := engine.NewRunner(backend, log)
	runCtx := engine.NewRunContext(opts.namespace, args)

	collectors := make(map[string]metrics.Collector, len(pipeline.Plan.StageNames()))
	for _, stage := range pipeline.Plan.StageNames() {
		collectors[stage] = metrics.NewCounting()
	}

	log.WithFields(map[string]any{"pipeline": pipeline.Name, "run": runCtx.RunID}).Info("starting pipeline")

	err = runner.RunPipeline(cmd.Context(), pipeline.Plan, plan.KindSource, runCtx,
		pipeline.Partitions, plugin.NewRegistryContext(registry, pipeline.Plan), collectors)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(pipeline, collectors))
	return nil
}

func parseRuntimeArgs(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	args := make(map[string]string, len(raw))
	for _, entry := range raw {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid runtime argument %q, expected key=value", entry)
		}
		args[key] = value
	}
	return args, nil
}

var (
	summaryTitleStyle  = lipgloss.NewStyle().Bold(true)
	summaryHeaderStyle = lipgloss.NewStyle().Faint(true)
	summaryErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// renderSummary prints a per-stage record count table in topological order.
func renderSummary(pipeline *config.Pipeline, collectors map[string]metrics.Collector) string {
	var b strings.Builder
	b.WriteString(summaryTitleStyle.Render("pipeline " + pipeline.Name))
	b.WriteString("\n")
	b.WriteString(summaryHeaderStyle.Render(fmt.Sprintf("%-24s %10s %10s %10s", "stage", "in", "out", "errors")))
	b.WriteString("\n")

	names := pipeline.Plan.StageNames()
	if len(names) == 0 {
		names = sortedKeys(collectors)
	}
	for _, stage := range names {
		counting, ok := collectors[stage].(*metrics.Counting)
		if !ok {
			continue
		}
		line := fmt.Sprintf("%-24s %10d %10d %10d",
			stage, counting.InputCount(), counting.OutputCount(), counting.ErrorCount())
		if counting.ErrorCount() > 0 {
			line = summaryErrorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(collectors map[string]metrics.Collector) []string {
	keys := make([]string, 0, len(collectors))
	for key := range collectors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
