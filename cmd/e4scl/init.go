package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/internal/pkg/profile"
)

// newInitCmd builds the home directory (holding the profile store) and
// writes a starter "default" profile, so a fresh install has something
// `launch --profile default` can resolve against.
func newInitCmd() *cobra.Command {
	var image, backend string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up the e4s-cl home directory and a starter profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(cfg.Home, 0755); err != nil {
				return e4serr.New(e4serr.ConfigurationError, cfg.Home, err)
			}

			store, err := profile.Load(cfg.ProfileStorePath())
			if err != nil {
				return err
			}

			if _, exists := store.Get("default"); !exists {
				if err := store.Create("default", &profile.Profile{
					Image:   image,
					Backend: backend,
					Source:  "init",
				}); err != nil {
					return err
				}
				if err := profile.Save(cfg.ProfileStorePath(), store); err != nil {
					return err
				}
			}

			fmt.Printf("e4s-cl home initialized at %s\n", cfg.Home)
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "image to record in the starter profile")
	cmd.Flags().StringVar(&backend, "backend", "", "backend to record in the starter profile")
	return cmd
}
