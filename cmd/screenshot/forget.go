package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go2tv.app/screenshot/screencast"
)

// tokenStore is swapped in tests.
var tokenStore = screencast.DefaultTokenStore

func newForgetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Delete the saved portal restore token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tokenStore()
			if err != nil {
				return err
			}
			if err := store.Delete(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", store.Path())
			return nil
		},
	}
}
