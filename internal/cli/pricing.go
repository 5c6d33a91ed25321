package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingShowCmd)
	pricingCmd.AddCommand(pricingSetModeCmd)
	pricingCmd.AddCommand(pricingSetHourlyCmd)
	pricingCmd.AddCommand(pricingDeleteTierCmd)
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Configure per-model billing",
}

var pricingShowCmd = &cobra.Command{
	Use:   "show <model>",
	Short: "Show a model's pricing configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runPricingShow,
}

var pricingSetModeCmd = &cobra.Command{
	Use:   "set-mode <model> <tier|hourly>",
	Short: "Switch a model between tiered and hourly billing",
	Args:  cobra.ExactArgs(2),
	RunE:  runPricingSetMode,
}

var pricingSetHourlyCmd = &cobra.Command{
	Use:   "set-hourly <model> <rate>",
	Short: "Set the hourly billing rate (USD/hour) for a model",
	Args:  cobra.ExactArgs(2),
	RunE:  runPricingSetHourly,
}

var pricingDeleteTierCmd = &cobra.Command{
	Use:   "delete-tier <model> <index>",
	Short: "Remove a pricing tier by index",
	Args:  cobra.ExactArgs(2),
	RunE:  runPricingDeleteTier,
}

type tierView struct {
	Index    int     `json:"Index"`
	InMin    int64   `json:"InMin"`
	InMax    int64   `json:"InMax"`
	OutMin   int64   `json:"OutMin"`
	OutMax   int64   `json:"OutMax"`
	InPrice  float64 `json:"InPrice"`
	OutPrice float64 `json:"OutPrice"`
}

type pricingView struct {
	ModelName  string     `json:"ModelName"`
	UseTiered  bool       `json:"UseTiered"`
	Tiers      []tierView `json:"Tiers"`
	HourlyRate float64    `json:"HourlyRate"`
}

func runPricingShow(cmd *cobra.Command, args []string) error {
	var out pricingView
	if err := newAPIClient().get("/api/billing/models/"+args[0]+"/pricing", &out); err != nil {
		return err
	}
	fmt.Printf("model:       %s\n", out.ModelName)
	fmt.Printf("billing:     %s\n", billingModeLabel(out.UseTiered))
	if out.UseTiered {
		fmt.Println("tiers:")
		for _, t := range out.Tiers {
			fmt.Printf("  [%d] in %d-%d, out %d-%d: $%.4f/1M in, $%.4f/1M out\n",
				t.Index, t.InMin, t.InMax, t.OutMin, t.OutMax, t.InPrice, t.OutPrice)
		}
	} else {
		fmt.Printf("hourly_rate: $%.4f/hour\n", out.HourlyRate)
	}
	return nil
}

func billingModeLabel(tiered bool) string {
	if tiered {
		return "tiered"
	}
	return "hourly"
}

func runPricingSetMode(cmd *cobra.Command, args []string) error {
	model, mode := args[0], args[1]
	if mode != "tier" && mode != "hourly" {
		return fmt.Errorf(`mode must be "tier" or "hourly"`)
	}
	if err := newAPIClient().post("/api/billing/models/"+model+"/pricing/set/"+mode, nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s: billing mode set to %s\n", model, mode)
	return nil
}

func runPricingSetHourly(cmd *cobra.Command, args []string) error {
	var rate float64
	if _, err := fmt.Sscanf(args[1], "%f", &rate); err != nil {
		return fmt.Errorf("invalid rate %q: %w", args[1], err)
	}
	body := map[string]float64{"rate": rate}
	if err := newAPIClient().post("/api/billing/models/"+args[0]+"/pricing/hourly", body, nil); err != nil {
		return err
	}
	fmt.Printf("%s: hourly rate set to $%.4f/hour\n", args[0], rate)
	return nil
}

func runPricingDeleteTier(cmd *cobra.Command, args []string) error {
	model, idx := args[0], args[1]
	if err := newAPIClient().delete("/api/billing/models/" + model + "/pricing/tier/" + idx); err != nil {
		return err
	}
	fmt.Printf("%s: deleted tier %s\n", model, idx)
	return nil
}
