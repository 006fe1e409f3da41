package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:     "select <job-id>",
	Aliases: []string{"watermarks"},
	Short:   "Set or show the watermark regions of a job",
	Long: `Set the watermark regions to remove, or show the saved ones.

Regions are x,y,width,height in source pixels. Saving replaces any
regions already on the job; selections are accepted while the job is
pending.

Examples:
  cfctl select abc123 --region 20,20,180,60
  cfctl select abc123 --region 20,20,180,60@3.5 --region 900,640,200,50
  cfctl select abc123 --regions-file regions.yaml
  cfctl select abc123                 # Show saved regions`,
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

var (
	selectRegions     []string
	selectRegionsFile string
	selectClear       bool
)

func init() {
	selectCmd.Flags().StringArrayVarP(&selectRegions, "region", "r", nil, "Region as x,y,width,height[@seconds] (repeatable)")
	selectCmd.Flags().StringVar(&selectRegionsFile, "regions-file", "", "YAML or JSON file with regions")
	selectCmd.Flags().BoolVar(&selectClear, "clear", false, "Save an empty selection")
}

func runSelect(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	jobID := args[0]

	regions, err := collectRegions(selectRegionsFile, selectRegions)
	if err != nil {
		return err
	}

	if len(regions) == 0 && !selectClear {
		saved, err := apiClient.GetSelections(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to get regions: %w", err)
		}
		if jsonOutput {
			return printer.JSON(saved)
		}
		var pretty any
		if err := json.Unmarshal(saved.Watermarks, &pretty); err != nil {
			pretty = string(saved.Watermarks)
		}
		data, _ := json.MarshalIndent(pretty, "", "  ")
		printer.KeyValue("Status", saved.Status)
		printer.Println(string(data))
		return nil
	}

	resp, err := apiClient.SubmitSelections(ctx, jobID, regions)
	if err != nil {
		return fmt.Errorf("failed to save regions: %w", err)
	}
	if jsonOutput {
		return printer.JSON(resp)
	}
	printer.Success("Saved %d region(s) on %s", resp.Regions, jobID)
	return nil
}
