package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"incidentd/internal/agent"
	"incidentd/internal/correlate"
	"incidentd/internal/graph"
	"incidentd/internal/logging"
	"incidentd/internal/types"
)

// RuntimeFactory builds a runtime for a (possibly per-round) team. The
// correlation run uses it to spin up per-alert investigators and the
// report leader.
type RuntimeFactory func(team []*agent.Definition, g *graph.Graph) (agent.Runtime, error)

// CorrelationOptions configures a multi-alert correlation run.
type CorrelationOptions struct {
	Engine  *correlate.Engine
	Toolset *agent.Toolset
	Factory RuntimeFactory
	// Concurrency caps parallel per-alert investigations; 0 means all at
	// once.
	Concurrency int
}

// CorrelationReport is the outcome of a correlation run.
type CorrelationReport struct {
	Rounds           int
	ExitReason       string
	Assessments      []types.AlertFindings
	SharedGroups     []correlate.SharedGroup
	TemporalPatterns []correlate.TemporalPattern
	LayerCascades    []correlate.LayerCascade
	FinalReport      string
}

// CorrelationRun fans per-alert investigators out each round, screens
// their assessments, and stops when the engine's exit policy fires. The
// leader agent then synthesizes the final report.
type CorrelationRun struct {
	engine      *correlate.Engine
	ts          *agent.Toolset
	factory     RuntimeFactory
	concurrency int
}

// NewCorrelationRun validates options and builds a run.
func NewCorrelationRun(opts CorrelationOptions) (*CorrelationRun, error) {
	if opts.Engine == nil || opts.Toolset == nil || opts.Factory == nil {
		return nil, errors.New("correlation run needs engine, toolset and runtime factory")
	}
	return &CorrelationRun{
		engine:      opts.Engine,
		ts:          opts.Toolset,
		factory:     opts.Factory,
		concurrency: opts.Concurrency,
	}, nil
}

// Run investigates the alerts over up to MaxRounds rounds.
func (c *CorrelationRun) Run(ctx context.Context, alerts []types.AlertRecord) (*CorrelationReport, error) {
	if len(alerts) == 0 {
		return &CorrelationReport{
			ExitReason:  "No alerts to investigate",
			FinalReport: "No alerts were provided, so there is nothing to correlate.",
		}, nil
	}

	report := &CorrelationReport{}
	report.TemporalPatterns = c.engine.DetectTemporalPatterns(alerts)

	var prev []types.AlertFindings
	roundContext := ""
	maxRounds := c.engine.Config().MaxRounds

	for round := 1; round <= maxRounds; round++ {
		logging.Correlate("correlation round %d/%d over %d alerts", round, maxRounds, len(alerts))
		curr, err := c.investigateRound(ctx, alerts, round, roundContext)
		if err != nil {
			return nil, fmt.Errorf("round %d failed: %w", round, err)
		}

		report.Rounds = round
		report.Assessments = curr
		report.SharedGroups = correlate.GroupSharedInfrastructure(curr)
		report.LayerCascades = correlate.DetectLayerCascades(curr)

		stop, reason := c.engine.CheckExit(curr, prev, round)
		if stop {
			report.ExitReason = reason
			logging.Correlate("correlation stopped after round %d: %s", round, reason)
			break
		}
		roundContext = c.screeningSummary(report)
		prev = curr
	}

	final, err := c.synthesize(ctx, report)
	if err != nil {
		// The leader failing must not lose the investigation: fall back to
		// the blackboard report.
		logging.CorrelateDebug("leader synthesis failed, using blackboard report: %v", err)
		final = c.ts.Board.Report("Multi-Alert Investigation Findings", true)
	}
	report.FinalReport = final
	return report, nil
}

// investigateRound runs one investigator per alert concurrently and parses
// their assessments.
func (c *CorrelationRun) investigateRound(ctx context.Context, alerts []types.AlertRecord, round int, roundContext string) ([]types.AlertFindings, error) {
	results := make([]types.AlertFindings, len(alerts))

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, alert := range alerts {
		g.Go(func() error {
			def := agent.NewInvestigator(alert, round, roundContext, c.ts)
			runtime, err := c.newSoloRuntime(def)
			if err != nil {
				return err
			}

			input := fmt.Sprintf("Begin round %d of your alert investigation. "+
				"Current shared findings:\n%s", round, c.ts.Board.Summary())
			output := ""
			result, err := runtime.RunTurn(gctx, agent.TurnRequest{Agent: def.Name, Input: input})
			switch {
			case err != nil:
				// A failed investigator degrades to an empty assessment
				// rather than aborting the whole round.
				logging.CorrelateDebug("investigator for %s failed: %v", alert.AlertName, err)
			case result.Suspended != nil:
				// No operator participates in correlation rounds; an agent
				// that insists on asking is treated as inconclusive.
				logging.CorrelateDebug("investigator for %s suspended mid-round, treating as inconclusive", alert.AlertName)
			default:
				output = result.FinalOutput
			}
			results[i] = correlate.ParseAlertFindings(output, alert, round)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// synthesize asks the leader agent for the final cross-alert report.
func (c *CorrelationRun) synthesize(ctx context.Context, report *CorrelationReport) (string, error) {
	def := agent.NewLeader(c.ts)
	runtime, err := c.newSoloRuntime(def)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Synthesize the final multi-alert report.\n\n")
	fmt.Fprintf(&sb, "Investigation stopped after round %d: %s\n\n", report.Rounds, report.ExitReason)
	sb.WriteString("## Per-Alert Assessments\n\n")
	for _, a := range report.Assessments {
		fmt.Fprintf(&sb, "- %s: %s (layers: %s, confidence: %.2f)\n",
			a.AlertName, a.RootCauseAssessment, strings.Join(a.AffectedLayers, "/"), a.Confidence)
	}
	sb.WriteString("\n")
	sb.WriteString(c.screeningSummary(report))

	result, err := runtime.RunTurn(ctx, agent.TurnRequest{Agent: def.Name, Input: sb.String()})
	if err != nil {
		return "", err
	}
	if result.Suspended != nil {
		return "", errors.New("leader suspended during synthesis")
	}
	return result.FinalOutput, nil
}

// newSoloRuntime builds a runtime for one agent with no handoff edges.
func (c *CorrelationRun) newSoloRuntime(def *agent.Definition) (agent.Runtime, error) {
	g, err := graph.New(graph.Spec{
		Entry: def.Name,
		Edges: map[string][]string{def.Name: {}},
	})
	if err != nil {
		return nil, err
	}
	return c.factory([]*agent.Definition{def}, g)
}

// screeningSummary renders the correlation screening results as a text
// block shared with the next round and the leader.
func (c *CorrelationRun) screeningSummary(report *CorrelationReport) string {
	var sb strings.Builder
	sb.WriteString("## Correlation Screening\n\n")

	if len(report.SharedGroups) > 0 {
		sb.WriteString("Shared infrastructure:\n")
		for _, g := range report.SharedGroups {
			fmt.Fprintf(&sb, "- %s shared by %s\n", g.Key, strings.Join(g.AlertIDs, ", "))
		}
	}
	if len(report.TemporalPatterns) > 0 {
		sb.WriteString("Temporal patterns:\n")
		for _, p := range report.TemporalPatterns {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", p.Kind, strings.Join(p.AlertNames, ", "), p.Description)
		}
	}
	if len(report.LayerCascades) > 0 {
		sb.WriteString("Cascade hypotheses:\n")
		for _, lc := range report.LayerCascades {
			fmt.Fprintf(&sb, "- %s (%s) may have caused %s (%s), gap %v\n",
				lc.FromAlert, lc.FromLayer, lc.ToAlert, lc.ToLayer, lc.Gap)
		}
	}
	if len(report.SharedGroups) == 0 && len(report.TemporalPatterns) == 0 && len(report.LayerCascades) == 0 {
		sb.WriteString("No cross-alert patterns detected.\n")
	}
	return sb.String()
}
