package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/lead-import/internal/domain"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

type importOptions struct {
	mappings       []string
	skipDuplicates bool
	updateExisting bool
	dryRun         bool
	status         string
	temperature    string
	followUpDays   int
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a lead file, resolving duplicates against existing leads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := loadFile(cmd, a, root, args[0], opts.mappings)
			if err != nil {
				return err
			}

			commit := commitOptions(cmd, opts)
			if opts.dryRun {
				return dryRun(cmd, a, root, sess, commit)
			}

			outcome, err := a.svc.Commit(cmd.Context(), root.orgID, sess.ID, commit)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), a.svc.Summarize(*outcome), root.jsonOut)
		},
	}

	cmd.Flags().StringArrayVar(&opts.mappings, "map", nil, "Override a column mapping as field=header (repeatable, empty header unassigns)")
	cmd.Flags().BoolVar(&opts.skipDuplicates, "skip-duplicates", false, "Skip candidates matching an existing lead")
	cmd.Flags().BoolVar(&opts.updateExisting, "update-existing", false, "Merge candidates into the matching existing lead")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Resolve duplicates and report dispositions without writing")
	cmd.Flags().StringVar(&opts.status, "status", "", "Status for created leads (default from config)")
	cmd.Flags().StringVar(&opts.temperature, "temperature", "", "Temperature for created leads: auto, hot, warm or cold")
	cmd.Flags().IntVar(&opts.followUpDays, "followup-days", 0, "Schedule a follow-up this many days ahead")
	return cmd
}

// commitOptions passes only the flags the user set, so config defaults apply
// to the rest.
func commitOptions(cmd *cobra.Command, opts importOptions) leadimport.CommitOptions {
	var c leadimport.CommitOptions
	flags := cmd.Flags()
	if flags.Changed("skip-duplicates") {
		c.SkipDuplicates = &opts.skipDuplicates
	}
	if flags.Changed("update-existing") {
		c.UpdateExisting = &opts.updateExisting
	}
	if flags.Changed("status") {
		c.Status = &opts.status
	}
	if flags.Changed("temperature") {
		c.Temperature = &opts.temperature
	}
	if flags.Changed("followup-days") {
		c.FollowUpDays = &opts.followUpDays
	}
	return c
}

// DryRunReport counts the dispositions a commit would apply.
type DryRunReport struct {
	Candidates int `json:"candidates"`
	Create     int `json:"create"`
	Merge      int `json:"merge"`
	Skip       int `json:"skip"`
}

func dryRun(cmd *cobra.Command, a *app, root *rootOptions, sess *leadimport.Session, commit leadimport.CommitOptions) error {
	policy := a.svc.Settings().Policy
	if commit.SkipDuplicates != nil {
		policy.SkipDuplicates = *commit.SkipDuplicates
	}
	if commit.UpdateExisting != nil {
		policy.UpdateExisting = *commit.UpdateExisting
	}

	idx, err := leadimport.PrefetchIndex(cmd.Context(), a.stores(root.orgID), sess.Candidates)
	if err != nil {
		return fmt.Errorf("duplicate lookup: %w", err)
	}

	report := DryRunReport{Candidates: len(sess.Candidates)}
	for _, r := range leadimport.Resolve(sess.Candidates, idx, policy) {
		switch r.Disposition.Kind {
		case domain.DispositionCreate:
			report.Create++
		case domain.DispositionMerge:
			report.Merge++
		case domain.DispositionSkip:
			report.Skip++
		}
	}

	w := cmd.OutOrStdout()
	if root.jsonOut {
		return json.NewEncoder(w).Encode(report)
	}
	fmt.Fprintf(w, "Dry run: %d candidates, %d create, %d merge, %d skip\n",
		report.Candidates, report.Create, report.Merge, report.Skip)
	return nil
}

func printSummary(w io.Writer, s leadimport.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "Imported %d of %d: %d created, %d updated, %d duplicates skipped, %d failed\n",
		s.Created+s.Updated, s.Total, s.Created, s.Updated, s.DuplicatesSkipped, s.Failed)
	if len(s.Errors) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCONTACT\tERROR")
	for _, e := range s.Errors {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.RowIndex, e.Contact, e.Error)
	}
	tw.Flush()
	if s.ErrorsTruncated {
		fmt.Fprintf(w, "... %d more errors\n", s.Failed-len(s.Errors))
	}
	return nil
}
