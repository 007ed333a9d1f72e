package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/adapters/mssql"
	"github.com/ruslano69/sqlbridge/pkg/audit"
	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/security"
)

type execOptions struct {
	params     []string
	procedure  string
	native     bool
	noCache    bool
	readOnly   bool
	user       string
	retries    int
	retryDelay time.Duration
}

func newExecCommand(a *app) *cobra.Command {
	opts := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Run a template on the configured database and print the result as JSON",
		Example: `  sqlbridge exec query.sql --param userId=42
  echo "SELECT GETDATE() AS now" | sqlbridge exec
  sqlbridge exec --procedure dbo.GetUserChats --param userId=42
  sqlbridge exec --read-only report.sql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExec(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.params, "param", "p", nil, "parameter as name=value (repeatable)")
	f.StringVar(&opts.procedure, "procedure", "", "call a stored procedure instead of reading a query (SQL Server only)")
	f.BoolVar(&opts.native, "native", false, "send the query as written, without translation")
	f.BoolVar(&opts.noCache, "no-cache", false, "bypass the Redis result cache")
	f.BoolVar(&opts.readOnly, "read-only", false, "reject anything but a single SELECT or WITH query")
	f.StringVar(&opts.user, "user", "", "user recorded in the audit log (default: OS user)")
	f.IntVar(&opts.retries, "retry", 1, "attempts for connectivity failures")
	f.DurationVar(&opts.retryDelay, "retry-delay", 500*time.Millisecond, "delay before the first retry")
	return cmd
}

// execOutput is Result plus the procedure return status.
type execOutput struct {
	Rows         []adapters.Row `json:"rows"`
	RowCount     int64          `json:"rowCount"`
	ReturnStatus *int32         `json:"returnStatus,omitempty"`
}

func (a *app) runExec(cmd *cobra.Command, args []string, opts *execOptions) error {
	ctx := cmd.Context()

	params, err := parseParams(opts.params)
	if err != nil {
		return err
	}
	var query string
	if opts.procedure == "" {
		if query, err = readQuery(cmd, args); err != nil {
			return err
		}
	}
	if opts.readOnly && opts.procedure != "" {
		return fmt.Errorf("%w: procedure calls are not allowed", security.ErrNotReadOnly)
	}
	if err := security.NewSQLValidator(opts.readOnly).Validate(query); err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	log := a.logger(cfg, cmd.ErrOrStderr())

	db, err := a.connect(ctx, cfg, log, opts.retries, opts.retryDelay)
	if err != nil {
		return err
	}
	defer db.Close(context.WithoutCancel(ctx))

	var q adapters.Querier = db
	if !opts.noCache && opts.procedure == "" && !opts.native {
		cached, cleanup, err := newCache(cfg, db, log)
		if err != nil {
			return err
		}
		defer cleanup()
		q = cached
	}

	auditor, err := newAuditor(cfg, log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if auditor != nil {
		defer auditor.Close()
	}

	started := time.Now()
	var res *adapters.Result
	err = a.withRetry(ctx, log, opts.retries, opts.retryDelay, func(ctx context.Context) error {
		var err error
		switch {
		case opts.procedure != "":
			res, err = db.Execute(ctx, opts.procedure, params)
		case opts.native:
			res, err = db.QueryNative(ctx, query)
		default:
			res, err = q.Query(ctx, query, params)
		}
		return err
	})
	if auditor != nil {
		auditor.Log(ctx, auditEntry(db.Dialect(), opts, query, params, res, err, time.Since(started)))
	}
	if err != nil {
		return err
	}

	out := execOutput{Rows: res.Rows, RowCount: res.RowCount}
	if raw, ok := res.Raw.(mssql.Raw); ok {
		out.ReturnStatus = raw.ReturnStatus
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func auditEntry(d tsql.Dialect, opts *execOptions, query string, params tsql.Params, res *adapters.Result, err error, took time.Duration) *audit.Entry {
	op, template := audit.OpQuery, query
	switch {
	case opts.procedure != "":
		op, template = audit.OpExecute, opts.procedure
	case opts.native:
		op = audit.OpNative
	}

	e := audit.NewEntry(op).
		WithQuery(d, template, params).
		WithDuration(took).
		WithError(err)
	if opts.user != "" {
		e.WithUser(opts.user)
	}
	if res != nil {
		e.WithRowCount(res.RowCount)
	}
	return e
}
