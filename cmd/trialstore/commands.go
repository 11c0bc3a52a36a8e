package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "trialstore/internal/jwt_token"
	"trialstore/internal/schema"
	schemahandler "trialstore/internal/schema/handler"
	"trialstore/pkg/requestcontext"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas [name]",
	Short: "List registered schemas, or the definitions of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if len(args) == 1 {
				defs, err := a.registry.Definitions(args[0])
				if err != nil {
					return err
				}
				return printJSON(schemahandler.FromDefinitions(args[0], defs))
			}
			out := make(map[string][]string)
			for name, versions := range a.registry.ListRegistered() {
				for _, v := range versions {
					out[name] = append(out[name], v.String())
				}
			}
			return printJSON(out)
		})
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Read or change the schema context of a collection",
}

var contextGetCmd = &cobra.Command{
	Use:   "get <collection>",
	Short: "Show the effective context of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			cc, err := a.service.CollectionContext(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cc)
		})
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set <collection> <context>",
	Short: "Pin a collection to a context",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := schema.ParseContext(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			cc, err := a.service.SetCollectionContext(cliContext(ctx), args[0], c)
			if err != nil {
				return err
			}
			return printJSON(cc)
		})
	},
}

var (
	migrateFrom string
	migrateTo   string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <collection>",
	Short: "Migrate every document of a collection between contexts",
	Long: `Migrate every document of a collection from one context's schema version to
another's. The collection context flips to the target only when no document
fails. Rerunning after a partial failure skips documents already migrated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := schema.ParseContext(migrateFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := schema.ParseContext(migrateTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report, err := a.service.MigrateCollection(cliContext(ctx), args[0], from, to)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed to migrate", report.Failed, report.Total)
			}
			return nil
		})
	},
}

var conformanceSample int

var conformanceCmd = &cobra.Command{
	Use:   "conformance <collection>",
	Short: "Check a sample of a collection against its context's schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report, err := a.service.ConformanceReport(cliContext(ctx), args[0], conformanceSample)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token signed with server.operator_signing_key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.OperatorSigningKey == "" {
			return fmt.Errorf("server.operator_signing_key is not set")
		}
		svc := jwttoken.NewJWTService(cfg.Server.OperatorSigningKey, cfg.Server.OperatorIssuer, operatorAudience)
		token, err := svc.GenerateOperatorToken(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

// cliContext stamps one-shot commands with a request id and the cli operator.
func cliContext(ctx context.Context) context.Context {
	ctx = requestcontext.WithRequestID(ctx, "cli-"+time.Now().UTC().Format("20060102T150405"))
	ctx = requestcontext.WithTime(ctx, time.Now())
	return requestcontext.WithOperator(ctx, "cli")
}

func init() {
	contextCmd.AddCommand(contextGetCmd, contextSetCmd)

	migrateCmd.Flags().StringVar(&migrateFrom, "from", "legacy", "source context")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "enhanced", "target context")

	conformanceCmd.Flags().IntVar(&conformanceSample, "sample", 0,
		"documents to check (default migration.conformance_sample)")

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "operator identity recorded in audit events")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
}
