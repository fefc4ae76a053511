package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/pdfsummarizer/internal/config"
)

// envFlags collects string flags exported to a child process as
// PREFIX_KEY=value.
type envFlags struct {
	prefix string
	values map[string]*string
}

func newEnvFlags(prefix string) *envFlags {
	return &envFlags{prefix: prefix, values: map[string]*string{}}
}

func (e *envFlags) bind(cmd *cobra.Command, flag, key, usage string) {
	v := new(string)
	cmd.Flags().StringVar(v, flag, "", usage+" ("+e.prefix+"_"+key+")")
	e.values[key] = v
}

// environ returns base plus one entry per non-empty flag, in key order.
// Appended entries win over inherited ones.
func (e *envFlags) environ(base []string) []string {
	keys := make([]string, 0, len(e.values))
	for k, v := range e.values {
		if *v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, e.prefix+"_"+k+"="+*e.values[k])
	}
	return env
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	integration := newEnvFlags(config.Prefix + "_TEST")
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		Long: `Run Go tests. The database and object storage round trips are skipped
unless --database-url or --s3-endpoint point at live services.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), integration.environ(os.Environ()), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	integration.bind(cmd, "database-url", "DATABASE_URL", "PostgreSQL DSN for journal tests")
	integration.bind(cmd, "s3-endpoint", "S3_ENDPOINT", "S3/MinIO endpoint for archive tests")
	integration.bind(cmd, "s3-access-key", "S3_ACCESS_KEY", "S3 access key for archive tests")
	integration.bind(cmd, "s3-secret-key", "S3_SECRET_KEY", "S3 secret key for archive tests")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the server or archive worker directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

// newServiceRunner runs a binary with go run, exporting its flags as
// SUMMARIZER_* variables on top of the current environment.
func newServiceRunner(name, path string) *cobra.Command {
	flags := newEnvFlags(config.Prefix)
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := append([]string{"run", path}, args...)
			return runCommand(cmd.Context(), flags.environ(os.Environ()), "go", goArgs...)
		},
	}
	flags.bind(cmd, "log-level", "LOG_LEVEL", "Log level")
	flags.bind(cmd, "database-url", "DATABASE_URL", "PostgreSQL DSN for the journal")
	flags.bind(cmd, "redis-addr", "REDIS_ADDR", "Redis address for the archive queue")
	flags.bind(cmd, "s3-endpoint", "S3_ENDPOINT", "S3/MinIO endpoint for archived summaries")
	if name == "server" {
		flags.bind(cmd, "address", "ADDRESS", "HTTP listen address")
		flags.bind(cmd, "endpoint", "ENDPOINT", "Summarization endpoint")
	}
	return cmd
}

func runCommand(ctx context.Context, env []string, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Env = env
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
