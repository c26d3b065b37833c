package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/local-briefing/internal/config"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/observability"
	"github.com/kjstillabower/local-briefing/internal/presenter"
	"github.com/kjstillabower/local-briefing/internal/service"
	"github.com/kjstillabower/local-briefing/internal/validation"
)

func newRunCmd(cfgFile *string) *cobra.Command {
	var (
		policyFlag string
		metricsOut string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Print a briefing for the current location",
		Long: "Resolve the current location and print weather and headlines. With --policy every " +
			"(the default) the sequential, wait-all and race policies run one after another.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			name := policyFlag
			if name == "" {
				name = a.cfg.DefaultPolicy
			}
			policies, err := policiesFor(name)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout*time.Duration(len(policies)))
			defer cancel()

			p := presenter.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
			runBriefings(ctx, a.service, p, policies, a.logger)

			if metricsOut != "" {
				if err := writeMetrics(metricsOut); err != nil {
					a.logger.Error("write metrics", zap.String("path", metricsOut), zap.Error(err))
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyFlag, "policy", "", "sequential, all, race or every (default from config)")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "write a Prometheus text snapshot to this file after the run")
	return cmd
}

// briefer is the subset of *service.BriefingService the run command needs.
type briefer interface {
	Run(ctx context.Context, policy service.Policy) (models.Briefing, error)
}

// policiesFor maps a --policy value to the policies to run, in presentation order.
func policiesFor(name string) ([]service.Policy, error) {
	v, err := validation.ValidateChoice("policy", name, config.PolicyEvery, "sequential", "all", "wait-all", "race")
	if err != nil {
		return nil, err
	}
	if v == config.PolicyEvery {
		return service.Policies(), nil
	}
	p, err := service.ParsePolicy(v)
	if err != nil {
		return nil, err
	}
	return []service.Policy{p}, nil
}

func sectionTitle(p service.Policy) string {
	switch p {
	case service.PolicySequential:
		return "Sequential Chain"
	case service.PolicyAll:
		return "Wait-All"
	case service.PolicyRace:
		return "Race"
	}
	return p.String()
}

// runBriefings runs each policy in turn and presents the outcome. A failed policy is
// reported and the next one still runs.
func runBriefings(ctx context.Context, svc briefer, p *presenter.Presenter, policies []service.Policy, logger *zap.Logger) {
	for _, policy := range policies {
		title := sectionTitle(policy)
		if err := p.PrintSection(title); err != nil {
			logger.Warn("write output", zap.Error(err))
		}
		b, err := svc.Run(ctx, policy)
		if err != nil {
			logger.Info("briefing failed", zap.String("policy", policy.String()), zap.Error(err))
			if perr := p.PrintError(title, err); perr != nil {
				logger.Warn("write output", zap.Error(perr))
			}
			continue
		}
		if err := p.PrintBriefing(b); err != nil {
			logger.Warn("write output", zap.Error(err))
		}
	}
}

func writeMetrics(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return observability.DumpMetrics(f)
}
