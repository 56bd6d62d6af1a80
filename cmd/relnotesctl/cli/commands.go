// Package cli implements the relnotesctl administrative commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/relnotes/internal/approval"
	"github.com/odyssey-erp/relnotes/internal/extract"
	"github.com/odyssey-erp/relnotes/internal/pipeline"
	"github.com/odyssey-erp/relnotes/internal/shared"
)

// Ledger is the approval surface the commands drive.
type Ledger interface {
	Release(ctx context.Context, date string) (approval.Release, error)
	Status(ctx context.Context, date string) (approval.StatusReport, error)
	Seed(ctx context.Context, input approval.SeedInput) (approval.Release, int, error)
	Vote(ctx context.Context, input approval.VoteInput) (approval.LineItem, error)
	Reset(ctx context.Context, date, name, actor string) (approval.LineItem, error)
	ResetAll(ctx context.Context, date, confirm, actor string) (int, error)
	Announce(ctx context.Context, date, by string) (approval.Message, error)
}

// Runner executes the pipeline inline.
type Runner interface {
	Run(ctx context.Context, date time.Time) (pipeline.Result, error)
}

// HistorySource lists recorded decisions for a release.
type HistorySource interface {
	History(ctx context.Context, rel approval.Release) ([]shared.ApprovalLog, error)
}

// JobQueue submits and inspects background jobs.
type JobQueue interface {
	Trigger(ctx context.Context, name string, date time.Time) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Env carries what the commands need. Jobs and History may be nil.
type Env struct {
	Ledger   Ledger
	Runner   Runner
	History  HistorySource
	Jobs     JobQueue
	Location *time.Location
	Now      func() time.Time
}

// Loader builds the Env lazily so --help never connects to anything.
type Loader func(ctx context.Context) (*Env, func(), error)

type options struct {
	date    string
	out     io.Writer
	in      io.Reader
	env     *Env
	cleanup func()
}

// Execute runs relnotesctl with args and releases whatever the loader opened.
func Execute(ctx context.Context, load Loader, args []string, in io.Reader, out io.Writer) error {
	root, opts := newRootCommand(load)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	defer func() {
		if opts.cleanup != nil {
			opts.cleanup()
		}
	}()
	return root.ExecuteContext(ctx)
}

func newRootCommand(load Loader) (*cobra.Command, *options) {
	opts := &options{}
	root := &cobra.Command{
		Use:           "relnotesctl",
		Short:         "Administer release-notes approvals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.out = cmd.OutOrStdout()
			opts.in = cmd.InOrStdin()
			env, done, err := load(cmd.Context())
			if err != nil {
				return err
			}
			opts.env, opts.cleanup = env, done
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.date, "date", "", "release date (YYYY-MM-DD, default today)")

	root.AddCommand(
		newStatusCommand(opts),
		newShowCommand(opts),
		newSeedCommand(opts),
		newVoteCommand(opts),
		newResetCommand(opts),
		newAnnounceCommand(opts),
		newRunCommand(opts),
		newHistoryCommand(opts),
		newJobsCommand(opts),
	)
	return root, opts
}

func (o *options) releaseDate() (time.Time, error) {
	if o.date != "" {
		return approval.ParseDate(o.date)
	}
	now := time.Now
	if o.env.Now != nil {
		now = o.env.Now
	}
	loc := o.env.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now().In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (o *options) releaseKey() (string, error) {
	date, err := o.releaseDate()
	if err != nil {
		return "", err
	}
	return date.Format(approval.DateLayout), nil
}

func newStatusCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show decision counters and readiness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := o.releaseKey()
			if err != nil {
				return err
			}
			report, err := o.env.Ledger.Status(cmd.Context(), date)
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "Release %s (%s)\n", report.Date, report.Title)
			fmt.Fprintf(o.out, "approved=%d rejected=%d deferred=%d pending=%d total=%d\n",
				report.Approved, report.Rejected, report.Deferred, report.Pending, report.Total)
			switch {
			case report.Announced:
				fmt.Fprintln(o.out, "announced")
			case report.Ready:
				fmt.Fprintln(o.out, "ready to announce")
			default:
				fmt.Fprintln(o.out, "not ready")
			}
			return nil
		},
	}
}

func newShowCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the line items of a release",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := o.releaseKey()
			if err != nil {
				return err
			}
			rel, err := o.env.Ledger.Release(cmd.Context(), date)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(o.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tVERSION\tSTATUS\tBY")
			for _, item := range rel.Items {
				by := item.VotedBy
				if by == "" {
					by = "-"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", item.Position, item.Name, item.Version, item.Status, by)
			}
			return tw.Flush()
		},
	}
}

func newSeedCommand(o *options) *cobra.Command {
	var file, title string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a release from a release-notes document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			ext := extract.ParseDocument(string(data))
			date, err := o.seedDate(ext)
			if err != nil {
				return err
			}
			if len(ext.Items) == 0 {
				fmt.Fprintf(o.out, "no line items found in %s\n", file)
				return nil
			}
			rel, added, err := o.env.Ledger.Seed(cmd.Context(), approval.SeedInput{Date: date, Title: title, TLDR: ext.TLDR, Items: ext.Items})
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "seeded %s: %d new, %d total\n", rel.Date, added, len(rel.Items))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "document to parse")
	cmd.Flags().StringVar(&title, "title", "", "release title override")
	return cmd
}

// seedDate prefers --date, then the document title, then today.
func (o *options) seedDate(ext approval.Extraction) (time.Time, error) {
	if o.date == "" && ext.ReleaseDate != "" {
		return approval.ParseDate(ext.ReleaseDate)
	}
	return o.releaseDate()
}

func newVoteCommand(o *options) *cobra.Command {
	var item, decision, voter string
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Record a decision for one line item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := o.releaseKey()
			if err != nil {
				return err
			}
			status, err := approval.ParseDecision(decision)
			if err != nil {
				return err
			}
			voted, err := o.env.Ledger.Vote(cmd.Context(), approval.VoteInput{Date: date, Name: item, Decision: status, Voter: voter})
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "%s: %s\n", voted.Name, approval.Label(voted.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "line item name")
	cmd.Flags().StringVar(&decision, "decision", "", "approve, reject or defer")
	cmd.Flags().StringVar(&voter, "voter", "", "reviewer name")
	return cmd
}

func newResetCommand(o *options) *cobra.Command {
	var item, actor string
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return one item, or every item, to pending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := o.releaseKey()
			if err != nil {
				return err
			}
			if item != "" {
				reset, err := o.env.Ledger.Reset(cmd.Context(), date, item, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(o.out, "%s: %s\n", reset.Name, approval.Label(reset.Status))
				return nil
			}
			confirm := approval.ResetConfirmation
			if !yes {
				fmt.Fprintf(o.out, "This clears every decision for %s. Type %s to continue: ", date, approval.ResetConfirmation)
				line, err := bufio.NewReader(o.in).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				confirm = strings.TrimSpace(line)
			}
			changed, err := o.env.Ledger.ResetAll(cmd.Context(), date, confirm, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "reset %d items\n", changed)
			return nil
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "reset a single item")
	cmd.Flags().StringVar(&actor, "actor", "relnotesctl", "who performed the reset")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the typed confirmation")
	return cmd
}

func newAnnounceCommand(o *options) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Deliver the announcement and seal the release",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := o.releaseKey()
			if err != nil {
				return err
			}
			msg, err := o.env.Ledger.Announce(cmd.Context(), date, by)
			if err != nil {
				return err
			}
			fmt.Fprintln(o.out, msg.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "who announces")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newRunCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the extraction pipeline inline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := o.releaseDate()
			if err != nil {
				return err
			}
			res, err := o.env.Runner.Run(cmd.Context(), date)
			if err != nil {
				return err
			}
			switch {
			case res.NoRelease:
				fmt.Fprintf(o.out, "%s: no release planned\n", res.Date)
			case res.Sealed:
				fmt.Fprintf(o.out, "%s: already announced\n", res.Date)
			default:
				fmt.Fprintf(o.out, "%s: extracted %d, added %d, %d items\n", res.Date, res.Extracted, res.Added, res.Items)
			}
			return nil
		},
	}
}

func newHistoryCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recorded decisions for a release",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.env.History == nil {
				return errors.New("history is not available")
			}
			date, err := o.releaseKey()
			if err != nil {
				return err
			}
			rel, err := o.env.Ledger.Release(cmd.Context(), date)
			if err != nil {
				return err
			}
			logs, err := o.env.History.History(cmd.Context(), rel)
			if err != nil {
				return err
			}
			for _, l := range logs {
				fmt.Fprintf(o.out, "%s  %-8s %-12s %s\n", l.At.Format(time.RFC3339), l.Action, l.Actor, l.Note)
			}
			return nil
		},
	}
}

func newJobsCommand(o *options) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	jobsCmd.AddCommand(&cobra.Command{
		Use:   "trigger <name>",
		Short: "Enqueue a job by task name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.env.Jobs == nil {
				return errors.New("job queue is not available")
			}
			var date time.Time
			if o.date != "" {
				parsed, err := approval.ParseDate(o.date)
				if err != nil {
					return err
				}
				date = parsed
			}
			info, err := o.env.Jobs.Trigger(cmd.Context(), args[0], date)
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}, &cobra.Command{
		Use:   "inspect",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.env.Jobs == nil {
				return errors.New("job queue is not available")
			}
			stats, err := o.env.Jobs.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		},
	})
	return jobsCmd
}
