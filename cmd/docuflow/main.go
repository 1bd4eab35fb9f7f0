// Command docuflow is the operator CLI: it validates plan definitions and
// inspects the plan registry and execution store configured by the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/docuflow/docuflow"
	"github.com/docuflow/docuflow/config"
	"github.com/docuflow/docuflow/workflow"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "validate":
		return cmdValidate(args[1:])
	case "plans":
		return cmdPlans(args[1:])
	case "executions":
		return cmdExecutions(args[1:])
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: docuflow <command> [flags]

commands:
  validate <file|dir>   validate plan definitions without registering them
  plans                 list the plans the configured engine would register
  executions            list executions from the configured state store

common flags:
  -config path          engine config file (default: DOCUFLOW_* env + defaults)`)
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("validate expects exactly one file or directory")
	}

	paths, err := collectPlanFiles(fs.Arg(0))
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var def workflow.PlanDefinition
		if err := yaml.Unmarshal(data, &def); err != nil {
			fmt.Printf("%s: FAIL\n  parse error: %v\n", path, err)
			failed++
			continue
		}
		result := workflow.ValidatePlan(&def)
		if result.Valid {
			fmt.Printf("%s: OK (%s v%s)\n", path, def.WorkflowID, def.Version)
		} else {
			fmt.Printf("%s: FAIL\n", path)
			for _, msg := range result.Errors {
				fmt.Printf("  error: %s\n", msg)
			}
			failed++
		}
		for _, msg := range result.Warnings {
			fmt.Printf("  warning: %s\n", msg)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, len(paths))
	}
	return nil
}

func collectPlanFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "index.yaml" {
			continue
		}
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(root, name))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no plan definitions under %s", root)
	}
	return paths, nil
}

func cmdPlans(args []string) error {
	cfg, err := parseConfig("plans", args, nil)
	if err != nil {
		return err
	}

	loader := workflow.NewLoader(nil)
	plans, err := loader.LoadDir(cfg.Plans.Dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKFLOW\tVERSION\tDOCUMENT TYPE\tNODES\tEDGES")
	for _, plan := range plans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			plan.WorkflowID, plan.Version, plan.DocumentType, len(plan.Nodes), len(plan.Edges))
	}
	return w.Flush()
}

func cmdExecutions(args []string) error {
	var status string
	var limit int
	cfg, err := parseConfig("executions", args, func(fs *flag.FlagSet) {
		fs.StringVar(&status, "status", "", "filter by status (pending|running|paused|completed|failed)")
		fs.IntVar(&limit, "limit", 50, "maximum rows")
	})
	if err != nil {
		return err
	}

	engine, err := docuflow.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	states, err := engine.Executor().ListExecutions(context.Background(), workflow.Status(status), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTION\tPROJECT\tWORKFLOW\tSTATUS\tNODE\tUPDATED")
	for _, s := range states {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ExecutionID, s.ProjectID, s.WorkflowID, s.Status, s.CurrentNodeID,
			s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func parseConfig(name string, args []string, extra func(*flag.FlagSet)) (*config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "engine config file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*configPath)
}
