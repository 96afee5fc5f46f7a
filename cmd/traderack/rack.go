package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/traderack/internal/events"
	"github.com/hyperengineering/traderack/internal/geom"
	"github.com/hyperengineering/traderack/internal/layout"
	"github.com/hyperengineering/traderack/internal/mep"
	"github.com/hyperengineering/traderack/internal/rack"
	"github.com/hyperengineering/traderack/internal/snapline"
	"github.com/hyperengineering/traderack/internal/workspace"
)

var (
	rackParamsFile string
	rackItemsFile  string
	rackJSONOutput bool
	layoutSeed     uint64
	layoutGens     int
	layoutTiers    int
)

var rackCmd = &cobra.Command{
	Use:   "rack",
	Short: "Build and lay out racks offline",
	Long:  "Generate a rack from a parameters file without a database or server.",
}

var rackBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a rack and print its members, snap lines and tier spaces",
	Args:  cobra.NoArgs,
	RunE:  runRackBuild,
}

var rackLayoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Suggest a tier layout for a list of MEP items",
	Args:  cobra.NoArgs,
	RunE:  runRackLayout,
}

func init() {
	rackCmd.PersistentFlags().StringVar(&rackParamsFile, "params", "",
		"Rack parameters JSON file (default parameters when empty)")
	rackCmd.PersistentFlags().BoolVar(&rackJSONOutput, "json", false,
		"Output in JSON format")

	rackLayoutCmd.Flags().StringVar(&rackItemsFile, "items", "", "MEP items JSON file")
	rackLayoutCmd.Flags().Uint64Var(&layoutSeed, "seed", 0, "Search seed (0 uses the default)")
	rackLayoutCmd.Flags().IntVar(&layoutGens, "generations", 0, "Generations to evolve (0 uses the default)")
	rackLayoutCmd.Flags().IntVar(&layoutTiers, "max-tiers", 0, "Maximum tiers (0 uses the default)")
	_ = rackLayoutCmd.MarkFlagRequired("items")

	rackCmd.AddCommand(rackBuildCmd)
	rackCmd.AddCommand(rackLayoutCmd)
}

func loadParams() (rack.Parameters, error) {
	if rackParamsFile == "" {
		return rack.DefaultParameters(), nil
	}
	p := rack.DefaultParameters()
	if err := readJSONFile(rackParamsFile, &p); err != nil {
		return rack.Parameters{}, err
	}
	return p, nil
}

// offlineWorkspace opens an in-memory workspace carrying params.
func offlineWorkspace(ctx context.Context, params rack.Parameters) (*workspace.Workspace, error) {
	ws := workspace.Open(ctx, nil, workspace.Config{Events: &events.Recorder{}})
	if _, err := ws.UpdateParameters(ctx, params, ""); err != nil {
		return nil, err
	}
	return ws, nil
}

// member is a post or beam in the build output.
type member struct {
	Name     string    `json:"name"`
	Position geom.Vec3 `json:"position"`
}

type buildOutput struct {
	Configuration rack.Configuration   `json:"configuration"`
	Posts         []member             `json:"posts"`
	Beams         []member             `json:"beams"`
	SnapPoints    int                  `json:"snapPoints"`
	SnapLines     snapline.Lines       `json:"snapLines"`
	TierSpaces    []snapline.TierSpace `json:"tierSpaces"`
}

func runRackBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	params, err := loadParams()
	if err != nil {
		return err
	}
	ws, err := offlineWorkspace(ctx, params)
	if err != nil {
		return err
	}
	defer ws.Close(ctx)
	view := ws.Rack()

	res := rack.Build(ws.Parameters(), rack.Options{RackID: workspace.RackID})
	out := buildOutput{
		Configuration: view.Configuration,
		SnapPoints:    view.SnapPoints,
		SnapLines:     view.SnapLines,
		TierSpaces:    view.TierSpaces,
	}
	for _, p := range res.Posts {
		out.Posts = append(out.Posts, member{Name: p.Name, Position: p.Position})
	}
	for _, b := range res.Beams {
		out.Beams = append(out.Beams, member{Name: b.Name, Position: b.Position})
	}

	w := cmd.OutOrStdout()
	if rackJSONOutput {
		return printJSON(w, out)
	}

	c := out.Configuration
	fmt.Fprintf(w, "Rack:        %s x %s, %s mount\n", c.RackLength, c.RackWidth, c.MountType)
	fmt.Fprintf(w, "Bays:        %d (last %.2f ft)\n", c.BayCount, c.LastBayWidth)
	fmt.Fprintf(w, "Tiers:       %d, total height %.2f ft\n", c.TierCount, c.TotalHeight)
	fmt.Fprintf(w, "Members:     %d posts, %d beams\n", len(out.Posts), len(out.Beams))
	fmt.Fprintf(w, "Snap points: %d\n", out.SnapPoints)
	fmt.Fprintf(w, "Snap lines:  %d horizontal, %d vertical\n",
		len(out.SnapLines.Horizontal), len(out.SnapLines.Vertical))

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "TIER\tBOTTOM (m)\tTOP (m)\tHEIGHT (m)")
	for _, s := range out.TierSpaces {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%.3f\n", s.TierIndex+1, s.Bottom, s.Top, s.Height)
	}
	return tw.Flush()
}

func runRackLayout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	params, err := loadParams()
	if err != nil {
		return err
	}
	var items []mep.Item
	if err := readJSONFile(rackItemsFile, &items); err != nil {
		return err
	}

	ws, err := offlineWorkspace(ctx, params)
	if err != nil {
		return err
	}
	defer ws.Close(ctx)
	for _, it := range items {
		if _, err := ws.AddMEPItem(ctx, it); err != nil {
			return fmt.Errorf("item %q: %w", it.ID, err)
		}
	}

	s, err := ws.SuggestLayout(ctx, workspace.LayoutRequest{
		MaxTiers:    layoutTiers,
		Generations: layoutGens,
		Seed:        layoutSeed,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if rackJSONOutput {
		return printJSON(w, s)
	}

	sol := s.Solution
	fmt.Fprintf(w, "Placed %d of %d items in %d tiers, %.3f m total (%d generations)\n",
		sol.Placed, len(items), len(sol.Tiers), sol.TotalHeight, sol.Generations)
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "TIER\tHEIGHT (m)\tBOTTOM\tTOP")
	for i, t := range sol.Tiers {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\n", i+1, t.Height, placementIDs(t.Bottom), placementIDs(t.Top))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(sol.Unplaced) > 0 {
		fmt.Fprintf(w, "Unplaced: %v\n", sol.Unplaced)
	}
	return nil
}

// placementIDs lists placement ids in order, or "-" when there are none.
func placementIDs(ps []layout.Placement) string {
	if len(ps) == 0 {
		return "-"
	}
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return strings.Join(ids, ", ")
}
