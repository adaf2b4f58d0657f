// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/spf13/cobra"
)

var (
	replayChanges bool
	replayFrames  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print status snapshots recorded by monitor --record",
	Long: `Read a snapshot file written by "monitor --record" and print each
recorded status with its timestamp.

Anomalies are re-checked for every snapshot. A truncated final record (for
example from a monitor that was killed mid-write) is reported but does not
hide the records before it.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayChanges, "changes", false, "Print only snapshots whose status differs from the previous one")
	replayCmd.Flags().BoolVar(&replayFrames, "frames", false, "Print the raw response frame of each snapshot")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	n, err := replaySnapshots(os.Stdout, bufio.NewReader(f), replayChanges, replayFrames)
	fmt.Printf("%d snapshot(s)\n", n)
	return err
}

// replaySnapshots prints every snapshot from r and returns how many were read
func replaySnapshots(out io.Writer, r io.Reader, changesOnly, frames bool) (int, error) {
	sr := xye.NewSnapshotReader(r)

	var (
		prev     xye.Status
		havePrev bool
		count    int
	)
	for {
		snap, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("snapshot %d: %w", count+1, err)
		}
		count++

		if changesOnly && havePrev && snap.Status == prev {
			continue
		}
		prev, havePrev = snap.Status, true

		fmt.Fprintf(out, "[%s]\n", snap.Time.Format("2006-01-02 15:04:05.000"))
		fmt.Fprint(out, xye.FormatStatus(snap.Status))
		for _, a := range xye.ValidateStatus(snap.Status) {
			fmt.Fprintf(out, "  Anomaly: %s\n", a.Message)
		}
		if frames && len(snap.Frame) > 0 {
			fmt.Fprintf(out, "  Frame: %s\n", xye.FormatFrame(snap.Frame))
		}
		fmt.Fprintln(out)
	}
}
