package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/equity/snapshot"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the equity CLI and the snapshot cache schema it reads.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("equity version %s\n", version)
		fmt.Printf("snapshot cache schema v%d\n", snapshot.SchemaVersion)
		fmt.Println("Daily balance curve for a trading journal")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
