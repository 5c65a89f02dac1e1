package main

import (
	"flag"
	"os"

	"epimit/internal/config"
	"epimit/pkg/epimit"
)

const (
	envStore      = "EPIMIT_STORE"
	envDBPath     = "EPIMIT_DB_PATH"
	envReportsDir = "EPIMIT_REPORTS_DIR"
)

// commonFlags are shared by every subcommand.
type commonFlags struct {
	fs         *flag.FlagSet
	configPath *string
	storeKind  *string
	dbPath     *string
	reportsDir *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		fs:         fs,
		configPath: fs.String("config", "", "TOML config file"),
		storeKind:  fs.String("store", "", "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "", "sqlite database path"),
		reportsDir: fs.String("reports", "", "artifacts directory"),
	}
}

// resolve layers the config file, the environment and explicit flags, in
// that order of increasing precedence.
func (f *commonFlags) resolve() (*config.Config, error) {
	cfg := config.Default()
	if *f.configPath != "" {
		loaded, err := config.Load(*f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnv(cfg)

	set := setFlags(f.fs)
	if set["store"] {
		cfg.Store.Kind = *f.storeKind
	}
	if set["db-path"] {
		cfg.Store.DBPath = *f.dbPath
	}
	if set["reports"] {
		cfg.Reports.Dir = *f.reportsDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) {
	if v, ok := os.LookupEnv(envStore); ok && v != "" {
		cfg.Store.Kind = v
	}
	if v, ok := os.LookupEnv(envDBPath); ok && v != "" {
		cfg.Store.DBPath = v
	}
	if v, ok := os.LookupEnv(envReportsDir); ok && v != "" {
		cfg.Reports.Dir = v
	}
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func newClient(cfg *config.Config) (*epimit.Client, error) {
	return epimit.New(epimit.Options{
		StoreKind:  cfg.Store.Kind,
		DBPath:     cfg.Store.DBPath,
		ReportsDir: cfg.Reports.Dir,
		ExportsDir: cfg.Reports.ExportsDir,
		Evaluator:  cfg.EvaluatorOptions(),
	})
}
