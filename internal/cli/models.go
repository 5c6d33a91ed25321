package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsStartCmd)
	modelsCmd.AddCommand(modelsStopCmd)
	modelsCmd.AddCommand(modelsStopAllCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and control catalogued models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every catalogued model and its current state",
	RunE:  runModelsList,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show <alias>",
	Short: "Show a single model's detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsShow,
}

var modelsStartCmd = &cobra.Command{
	Use:   "start <alias>",
	Short: "Start (or wait for) a model, blocking until it is routing",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsStart,
}

var modelsStopCmd = &cobra.Command{
	Use:   "stop <alias>",
	Short: "Stop a running model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsStop,
}

var modelsStopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every running model",
	RunE:  runModelsStopAll,
}

type modelInfoView struct {
	Name      string `json:"name"`
	Aliases   []string
	Mode      string `json:"mode"`
	AutoStart bool   `json:"auto_start"`
	State     string `json:"state"`
	Variant   string `json:"variant"`
	Reason    string `json:"reason"`
	InFlight  int64  `json:"in_flight"`
}

func runModelsList(cmd *cobra.Command, args []string) error {
	var out map[string]modelInfoView
	if err := newAPIClient().get("/api/models/all-models/info", &out); err != nil {
		return err
	}

	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODE\tSTATE\tIN-FLIGHT\tAUTOSTART")
	for _, name := range names {
		m := out[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", m.Name, m.Mode, m.State, m.InFlight, m.AutoStart)
	}
	return tw.Flush()
}

func runModelsShow(cmd *cobra.Command, args []string) error {
	var out modelInfoView
	if err := newAPIClient().get("/api/models/"+args[0]+"/info", &out); err != nil {
		return err
	}
	fmt.Printf("name:       %s\n", out.Name)
	fmt.Printf("aliases:    %v\n", out.Aliases)
	fmt.Printf("mode:       %s\n", out.Mode)
	fmt.Printf("auto_start: %t\n", out.AutoStart)
	fmt.Printf("state:      %s\n", out.State)
	if out.Variant != "" {
		fmt.Printf("variant:    %s\n", out.Variant)
	}
	if out.Reason != "" {
		fmt.Printf("reason:     %s\n", out.Reason)
	}
	fmt.Printf("in_flight:  %d\n", out.InFlight)
	return nil
}

func runModelsStart(cmd *cobra.Command, args []string) error {
	var out struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	if err := newAPIClient().post("/api/models/"+args[0]+"/start", nil, &out); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", out.Name, out.State)
	return nil
}

func runModelsStop(cmd *cobra.Command, args []string) error {
	var out struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	if err := newAPIClient().post("/api/models/"+args[0]+"/stop", nil, &out); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", out.Name, out.State)
	return nil
}

func runModelsStopAll(cmd *cobra.Command, args []string) error {
	if err := newAPIClient().post("/api/models/stop-all", nil, nil); err != nil {
		return err
	}
	fmt.Println("stopped all running models")
	return nil
}
