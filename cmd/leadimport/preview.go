package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var mappings []string

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Show detected columns, mapping and the first candidates of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := loadFile(cmd, a, opts, args[0], mappings)
			if err != nil {
				return err
			}
			return printPreview(cmd.OutOrStdout(), a.svc.Preview(sess), opts.jsonOut)
		},
	}
	cmd.Flags().StringArrayVar(&mappings, "map", nil, "Override a column mapping as field=header (repeatable, empty header unassigns)")
	return cmd
}

// loadFile uploads path into a new session and applies mapping overrides.
func loadFile(cmd *cobra.Command, a *app, opts *rootOptions, path string, mappings []string) (*leadimport.Session, error) {
	patch, err := parseMappings(mappings)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	ctx := cmd.Context()
	sess, err := a.svc.Upload(ctx, opts.orgID, filepath.Base(path), "", data)
	if err != nil {
		return nil, err
	}
	if len(patch) > 0 {
		if sess, err = a.svc.Remap(ctx, opts.orgID, sess.ID, patch); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func printPreview(w io.Writer, p leadimport.Preview, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	fmt.Fprintf(w, "File:       %s (%s)\n", p.Filename, p.Kind)
	fmt.Fprintf(w, "Candidates: %d\n", p.CandidateCount)
	if len(p.Excluded) > 0 {
		fmt.Fprintf(w, "Excluded:   %d rows without a name %v\n", len(p.Excluded), p.Excluded)
	}
	if p.MalformedCount > 0 {
		fmt.Fprintf(w, "Malformed:  %d records skipped\n", p.MalformedCount)
	}
	for _, warn := range p.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}

	if len(p.Headers) > 0 {
		fmt.Fprintln(w, "\nMapping:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, f := range datanorm.CanonicalFields {
			if header, ok := p.Mapping.Header(f); ok {
				fmt.Fprintf(tw, "  %s\t<- %s\n", f, header)
			}
		}
		tw.Flush()
	}

	if len(p.Candidates) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tNAME\tEMAIL\tPHONE\tCOMPANY\tWARM")
		for _, c := range p.Candidates {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n",
				c.RawRowIndex, c.Name, deref(c.Email), deref(c.Phone), deref(c.Company), c.WarmScore)
		}
		tw.Flush()
		if p.CandidateCount > len(p.Candidates) {
			fmt.Fprintf(w, "... %d more\n", p.CandidateCount-len(p.Candidates))
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return strings.TrimSpace(*s)
}
