package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chourmo/osmdata"
)

var (
	queryNodes     bool
	queryWays      bool
	queryRelations bool
	queryGeometry  bool
	queryTopology  bool
	queryPreset    string
	queryTags      []string
	queryKeep      []string
	queryExclude   []string
	queryKeepFirst bool
	queryJSON      bool
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryNodes, "nodes", false, "include nodes")
	queryCmd.Flags().BoolVar(&queryWays, "ways", false, "include ways")
	queryCmd.Flags().BoolVar(&queryRelations, "relations", false, "include relations")
	queryCmd.Flags().BoolVar(&queryGeometry, "geometry", false, "resolve point/line/polygon geometry")
	queryCmd.Flags().BoolVar(&queryTopology, "topology", false, "split way networks into shared-node segments (requires --ways --geometry)")
	queryCmd.Flags().StringVar(&queryPreset, "preset", "", "apply a named preset (highways, buildings, pois) before the other flags")
	queryCmd.Flags().StringArrayVar(&queryTags, "tag", nil, "tag column to emit (repeatable); default is all tags")
	queryCmd.Flags().StringArrayVar(&queryKeep, "keep", nil, "key=value (or bare key for any value) to keep, repeatable")
	queryCmd.Flags().StringArrayVar(&queryExclude, "exclude", nil, "key=value (or bare key for any value) to exclude, repeatable")
	queryCmd.Flags().BoolVar(&queryKeepFirst, "keep-first", true, "evaluate keep before exclude; set false for an unfiltered dump with no --keep/--exclude/preset at all")
	queryCmd.Flags().BoolVarP(&queryJSON, "json", "j", false, "format rows as JSON")
}

var queryCmd = &cobra.Command{
	Use:   "query <OSM file>",
	Short: "Extract nodes, ways, and relations from a PBF file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q := osmdata.NewQuery()

		if queryPreset != "" {
			if err := q.WithDefaults(queryPreset); err != nil {
				log.Fatal(err)
			}
		}

		q.Nodes = q.Nodes || queryNodes
		q.Ways = q.Ways || queryWays
		q.Relations = q.Relations || queryRelations
		q.Geometry = q.Geometry || queryGeometry
		q.Topology = q.Topology || queryTopology

		q.AppendTags(queryTags)
		q.AppendKeep(parseFilterFlags(queryKeep))
		q.AppendExclude(parseFilterFlags(queryExclude))
		q.KeepFirst = queryKeepFirst

		o, err := osmdata.Open(args[0], osmdata.WithProgress())
		if err != nil {
			log.Fatal(err)
		}
		defer o.Close()

		table, err := o.Query(q)
		if err != nil {
			log.Fatal(err)
		}

		if queryJSON {
			b, err := json.Marshal(table)
			if err != nil {
				log.Fatal(err)
			}

			fmt.Println(string(b))

			return
		}

		if q.Topology {
			for _, s := range table.Segments {
				fmt.Printf("relation=%d source=%d target=%d points=%d\n", s.OSMID, s.Source, s.Target, len(s.Points))
			}

			return
		}

		for _, row := range table.Rows {
			fmt.Printf("%s %d %v\n", row.Type, row.OSMID, row.Tags)
		}
	},
}

// parseFilterFlags turns a repeated "key=value" (or bare "key" for any
// value) flag into the map[string][]string shape Query.Keep/Exclude
// wants, merging repeated keys into a single value list.
func parseFilterFlags(flags []string) map[string][]string {
	if len(flags) == 0 {
		return nil
	}

	out := make(map[string][]string, len(flags))

	for _, f := range flags {
		key, value, hasValue := strings.Cut(f, "=")

		if !hasValue {
			out[key] = []string{}
			continue
		}

		if existing, ok := out[key]; ok && len(existing) > 0 {
			out[key] = append(existing, value)
		} else if !ok {
			out[key] = []string{value}
		}
	}

	return out
}
