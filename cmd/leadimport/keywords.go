package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/service/leadimport"
)

func newKeywordsCmd(root *rootOptions) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Print the header keyword dictionary used for column auto-mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			mapper, err := leadimport.MapperFromConfig(cfg.Import)
			if err != nil {
				return err
			}
			dict := mapper.Dictionary()

			w := cmd.OutOrStdout()
			switch {
			case asYAML:
				// same layout as keywords_file, so the output can seed a custom dictionary
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]interface{}{"fields": dict})
			case root.jsonOut:
				return json.NewEncoder(w).Encode(dict)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tKEYWORDS")
			for _, entry := range dict {
				fmt.Fprintf(tw, "%s\t%s\n", entry.Field, strings.Join(entry.Keywords, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as a keywords file")
	return cmd
}
