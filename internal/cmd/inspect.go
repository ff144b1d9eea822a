package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/activity"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the session summary of a written FIT activity file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := activity.ReadSummary(args[0])
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}
}

func printSummary(s *activity.FileSummary) {
	fmt.Printf("file:            %s\n", s.FilePath)
	fmt.Printf("records:         %d\n", s.RecordCount)
	if !s.HasSession {
		fmt.Println("no session message (degraded file)")
		return
	}
	fmt.Printf("sport:           %s / %s\n", s.Sport, s.SubSport)
	if !s.StartTime.IsZero() {
		fmt.Printf("start:           %s\n", s.StartTime.Format(time.RFC3339))
	}
	fmt.Printf("elapsed:         %.0f s\n", s.ElapsedSeconds)
	fmt.Printf("distance:        %.0f m\n", s.DistanceMeters)
	fmt.Printf("calories:        %d kcal\n", s.Calories)
	fmt.Printf("avg/max power:   %.0f / %.0f W\n", s.AvgPowerWatts, s.MaxPowerWatts)
	if s.NormalizedPower > 0 {
		fmt.Printf("norm power:      %.0f W\n", s.NormalizedPower)
	}
	if s.AvgHeartRate > 0 {
		fmt.Printf("avg/max HR:      %d / %d bpm\n", s.AvgHeartRate, s.MaxHeartRate)
	}
	if s.AvgSpeedMps > 0 {
		fmt.Printf("avg/max speed:   %.2f / %.2f m/s\n", s.AvgSpeedMps, s.MaxSpeedMps)
	}
	if s.AvgCadence > 0 {
		fmt.Printf("avg cadence:     %d rpm\n", s.AvgCadence)
	}
}
