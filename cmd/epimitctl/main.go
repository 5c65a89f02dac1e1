package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"epimit/internal/check"
	"epimit/internal/model"
	"epimit/pkg/epimit"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "check":
		return runCheck(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", cfg.Store.Kind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", cfg.Store.Kind)
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	common := addCommonFlags(fs)
	scenarioKind := fs.String("scenario", "", "scenario kind: random|reference")
	nodes := fs.Int("nodes", 0, "number of nodes")
	seed := fs.Int64("seed", 0, "random scenario seed")
	withJacobian := fs.Bool("jacobian", false, "write jacobian.json")
	withDense := fs.Bool("dense", false, "write the flat Jacobian as jacobian_dense.csv")
	withCheck := fs.Bool("check", false, "run the finite-difference partials check")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	set := setFlags(fs)
	if set["scenario"] {
		cfg.Scenario.Kind = *scenarioKind
	}
	if set["nodes"] {
		cfg.Scenario.Nodes = *nodes
	}
	if set["seed"] {
		cfg.Scenario.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	batch, err := cfg.Batch()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Evaluate(ctx, epimit.EvaluateRequest{
		Scenario:      cfg.Scenario.Kind,
		Seed:          cfg.Scenario.Seed,
		Batch:         batch,
		WithJacobian:  *withJacobian,
		WithDense:     *withDense,
		CheckPartials: *withCheck,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		type evaluateOutput struct {
			RunID          string  `json:"run_id"`
			ArtifactsDir   string  `json:"artifacts_dir"`
			Nodes          int     `json:"nodes"`
			MaxI           float64 `json:"max_i"`
			PartialsPassed *bool   `json:"partials_passed,omitempty"`
		}
		out := evaluateOutput{
			RunID:        summary.RunID,
			ArtifactsDir: summary.ArtifactsDir,
			Nodes:        summary.Nodes,
			MaxI:         summary.MaxI,
		}
		if summary.Partials != nil {
			passed := summary.Partials.Passed
			out.PartialsPassed = &passed
		}
		return writeJSON(out)
	}

	fmt.Printf("run_id=%s scenario=%s nodes=%d max_I=%.9g artifacts=%s\n",
		summary.RunID,
		cfg.Scenario.Kind,
		summary.Nodes,
		summary.MaxI,
		summary.ArtifactsDir,
	)
	if summary.Partials != nil {
		printPartials(*summary.Partials)
	}
	return nil
}

func runCheck(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "evaluation id")
	latest := fs.Bool("latest", false, "check the most recent evaluation")
	tolerance := fs.Float64("tolerance", check.DefaultTolerance, "relative error tolerance")
	step := fs.Float64("step", check.DefaultStep, "finite-difference step before scaling")
	jsonOut := fs.Bool("json", false, "emit report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("check requires --run-id or --latest")
	}
	if *tolerance <= 0 || *step <= 0 {
		return errors.New("tolerance and step must be > 0")
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	partials, err := client.CheckPartials(ctx, epimit.CheckRequest{
		RunID:   *runID,
		Latest:  *latest,
		Options: check.Options{Tolerance: *tolerance, Step: *step},
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(partials)
	}
	printPartials(partials)
	if !partials.Passed {
		return fmt.Errorf("partials check failed for %s", partials.ID)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max evaluations to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID          string  `json:"run_id"`
			CreatedAtUTC   string  `json:"created_at_utc"`
			Scenario       string  `json:"scenario"`
			Seed           int64   `json:"seed"`
			Nodes          int     `json:"nodes"`
			MaxI           float64 `json:"max_i"`
			PartialsPassed *bool   `json:"partials_passed,omitempty"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem(r))
		}
		return writeJSON(items)
	}
	if len(runs) == 0 {
		fmt.Println("no evaluations found")
		return nil
	}

	for _, r := range runs {
		partials := "n/a"
		if r.PartialsPassed != nil {
			partials = fmt.Sprintf("%t", *r.PartialsPassed)
		}
		fmt.Printf("run_id=%s created_at=%s scenario=%s seed=%d nodes=%d max_I=%.9g partials_passed=%s\n",
			r.RunID,
			r.CreatedAtUTC,
			r.Scenario,
			r.Seed,
			r.Nodes,
			r.MaxI,
			partials,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "evaluation id (default: most recent)")
	jsonOut := fs.Bool("json", false, "emit evaluation record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.Show(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(detail.Record)
	}

	record := detail.Record
	fmt.Printf("run_id=%s created_at=%s scenario=%s seed=%d\n", record.ID, record.CreatedAtUTC, record.Scenario, record.Seed)
	fmt.Printf("settings infection_floor=%g exp_ceiling=%g sharpness=%g\n",
		record.Settings.InfectionFloor, record.Settings.ExpCeiling, record.Settings.Sharpness)
	fmt.Printf("shape a=%g t_on=%g t_off=%g max_I=%.9g\n",
		record.Batch.Shape.A, record.Batch.Shape.TOn, record.Batch.Shape.TOff, record.Result.MaxI)
	nodes := record.Batch.Nodes
	result := record.Result
	for i := 0; i < nodes.Len(); i++ {
		fmt.Printf("node=%d t=%.6g theta=%.6g Sdot=%.6g Edot=%.6g Idot=%.6g Rdot=%.6g Ddot=%.6g sigma_sq=%.6g\n",
			i, nodes.T[i], result.Theta[i], result.Sdot[i], result.Edot[i], result.Idot[i], result.Rdot[i], result.Ddot[i], result.SigmaSq[i])
	}
	if detail.Partials != nil {
		printPartials(*detail.Partials)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "evaluation id")
	latest := fs.Bool("latest", false, "export the most recent evaluation")
	outDir := fs.String("out", "", "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}
	cfg, err := common.resolve()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, epimit.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func printPartials(r model.PartialsReport) {
	failed := r.Failed()
	fmt.Printf("partials run_id=%s passed=%t pairs=%d failed=%d undeclared=%d tolerance=%g\n",
		r.ID, r.Passed, len(r.Pairs), len(failed), len(r.Undeclared), r.Tolerance)
	for _, pair := range failed {
		fmt.Printf("  failed %s/%s rel=%.3e abs=%.3e off_diagonal=%.3e\n",
			pair.Output, pair.Input, pair.RelativeError, pair.AbsoluteError, pair.OffDiagonal)
	}
	for _, key := range r.Undeclared {
		fmt.Printf("  undeclared %s\n", key)
	}
}

func writeJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: epimitctl <init|reset|evaluate|check|runs|show|export> [flags]", msg)
}
