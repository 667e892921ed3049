package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version = func() string {
	if v := getVersion(); v != "" {
		return v
	}
	return "dev"
}()

var rootCmd = &cobra.Command{
	Use:     "schemasync",
	Short:   "Postgres-first database schema management",
	Long:    `Schemasync is a tool for managing PostgreSQL schema migrations.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
