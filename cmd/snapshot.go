package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hscore/internal/model"
	"github.com/sells-group/hscore/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage stored snapshots",
	Long:  "Commands for listing, inspecting, ingesting and restoring scored snapshots.",
}

// -- snapshot list --

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snaps, err := st.ListSnapshots(ctx)
		if err != nil {
			return eris.Wrap(err, "snapshot list")
		}
		if len(snaps) == 0 {
			fmt.Fprintln(os.Stderr, "No snapshots found.")
			return nil
		}
		formatSnapshotList(os.Stdout, snaps)
		return nil
	},
}

// -- snapshot show --

var snapshotShowCmd = &cobra.Command{
	Use:   "show <snapshot-id|current>",
	Short: "Show a snapshot and its top-ranked subzones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var snap *model.Snapshot
		if args[0] == "current" {
			snap, err = st.CurrentSnapshot(ctx)
		} else {
			snap, err = st.GetSnapshot(ctx, args[0])
		}
		if err != nil {
			return eris.Wrap(err, "snapshot show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		top, _ := cmd.Flags().GetInt("top")
		pa, _ := cmd.Flags().GetString("planning-area")
		rows, err := st.ListSubzones(ctx, snap.ID, store.SubzoneFilter{PlanningArea: pa, RankTop: top})
		if err != nil {
			return eris.Wrap(err, "snapshot show")
		}
		formatSnapshot(os.Stdout, snap, rows)
		return nil
	},
}

// -- snapshot restore --

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Make an earlier snapshot current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetCurrent(ctx, args[0]); err != nil {
			return eris.Wrap(err, "snapshot restore")
		}
		fmt.Fprintf(os.Stderr, "Snapshot %s is now current.\n", args[0])
		return nil
	},
}

// -- snapshot ingest --

var snapshotIngestCmd = &cobra.Command{
	Use:   "ingest <file.geojson>",
	Short: "Store a scored FeatureCollection as a new snapshot",
	Long:  "Reads a FeatureCollection written by 'hscore score' or by an older export and stores it as a new snapshot. Rows without a subzone code are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "snapshot ingest")
		}
		subzones, err := model.DecodeFeatureCollection(data)
		if err != nil {
			return eris.Wrapf(err, "snapshot ingest: %s", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		note, _ := cmd.Flags().GetString("note")
		createdBy, _ := cmd.Flags().GetString("created-by")
		current, _ := cmd.Flags().GetBool("current")
		snap, err := st.CreateSnapshot(ctx, subzones, store.CreateOptions{
			Note:        note,
			CreatedBy:   createdBy,
			MakeCurrent: current,
			Meta:        map[string]any{"source": "file", "file": args[0], "features": len(subzones)},
		})
		if err != nil {
			return eris.Wrap(err, "snapshot ingest")
		}
		fmt.Fprintf(os.Stderr, "Stored snapshot %s with %d of %d features.\n", snap.ID, snap.Subzones, len(subzones))
		return nil
	},
}

func init() {
	snapshotShowCmd.Flags().Int("top", 10, "number of ranked subzones to show (0 for all)")
	snapshotShowCmd.Flags().String("planning-area", "", "only show subzones in this planning area")
	snapshotShowCmd.Flags().Bool("json", false, "print the snapshot record as JSON")

	snapshotIngestCmd.Flags().String("note", "", "snapshot note")
	snapshotIngestCmd.Flags().String("created-by", "", "snapshot author")
	snapshotIngestCmd.Flags().Bool("current", true, "make the new snapshot current")

	snapshotCmd.AddCommand(snapshotListCmd, snapshotShowCmd, snapshotRestoreCmd, snapshotIngestCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// formatSnapshotList writes a tabular list of snapshots to w.
func formatSnapshotList(out io.Writer, snaps []model.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCURRENT\tCREATED\tSUBZONES\tBY\tNOTE")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t--------\t--\t----")

	for _, s := range snaps {
		current := ""
		if s.IsCurrent {
			current = "*"
		}
		note := s.Note
		if len(note) > 40 {
			note = note[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(s.ID),
			current,
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.Subzones,
			s.CreatedBy,
			note,
		)
	}
	_ = w.Flush()
}

// formatSnapshot writes a snapshot header and its ranked rows to w.
func formatSnapshot(out io.Writer, snap *model.Snapshot, rows []model.ScoredSubzone) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Snapshot:\t%s\n", snap.ID)
	_, _ = fmt.Fprintf(w, "Created:\t%s (%s)\n", snap.CreatedAt.Format("2006-01-02 15:04 MST"), humanize.Time(snap.CreatedAt))
	if snap.CreatedBy != "" {
		_, _ = fmt.Fprintf(w, "By:\t%s\n", snap.CreatedBy)
	}
	if snap.Note != "" {
		_, _ = fmt.Fprintf(w, "Note:\t%s\n", snap.Note)
	}
	_, _ = fmt.Fprintf(w, "Current:\t%t\n", snap.IsCurrent)
	_, _ = fmt.Fprintf(w, "Subzones:\t%d\n\n", snap.Subzones)

	_, _ = fmt.Fprintln(w, "RANK\tSUBZONE\tPLANNING AREA\tPOPULATION\tHAWKER\tMRT\tBUS\tH-SCORE")
	for _, s := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.3f\n",
			model.RankLabel(s.HRank, snap.Subzones),
			s.Subzone,
			s.PlanningArea,
			humanize.Comma(s.Population),
			s.Hawker, s.MRT, s.Bus, s.HScore,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
