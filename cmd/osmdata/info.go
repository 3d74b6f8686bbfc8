package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/chourmo/osmdata"
)

var infoJSON bool

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVarP(&infoJSON, "json", "j", false, "format information in JSON")
}

var infoCmd = &cobra.Command{
	Use:   "info <OSM file>",
	Short: "Print header and element counts for a PBF file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		o, err := osmdata.Open(args[0], osmdata.WithProgress())
		if err != nil {
			log.Fatal(err)
		}
		defer o.Close()

		info := o.Info()

		if infoJSON {
			b, err := json.Marshal(info)
			if err != nil {
				log.Fatal(err)
			}

			fmt.Println(string(b))

			return
		}

		h := info.Header
		if h.BoundingBox != nil {
			fmt.Printf("BoundingBox: %s\n", h.BoundingBox)
		}
		fmt.Printf("RequiredFeatures: %s\n", strings.Join(h.RequiredFeatures, ", "))
		fmt.Printf("OptionalFeatures: %s\n", strings.Join(h.OptionalFeatures, ", "))
		fmt.Printf("WritingProgram: %s\n", h.WritingProgram)
		fmt.Printf("Source: %s\n", h.Source)
		fmt.Printf("OsmosisReplicationTimestamp: %s\n", h.OsmosisReplicationTimestamp.UTC().Format(time.RFC3339))
		fmt.Printf("OsmosisReplicationSequenceNumber: %d\n", h.OsmosisReplicationSequenceNumber)
		fmt.Printf("OsmosisReplicationBaseURL: %s\n", h.OsmosisReplicationBaseURL)
		fmt.Printf("NodeCount: %s\n", humanize.Comma(info.NodeCount))
		fmt.Printf("WayCount: %s\n", humanize.Comma(info.WayCount))
		fmt.Printf("RelationCount: %s\n", humanize.Comma(info.RelationCount))
		fmt.Printf("BlockCount: %s\n", humanize.Comma(int64(info.BlockCount)))
		fmt.Printf("StringCount: %s\n", humanize.Comma(int64(info.StringCount)))
	},
}
