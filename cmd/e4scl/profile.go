package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/internal/pkg/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage launch profiles",
	}

	cmd.AddCommand(
		newProfileCreateCmd(),
		newProfileDeleteCmd(),
		newProfileListCmd(),
		newProfileShowCmd(),
		newProfileCopyCmd(),
		newProfileEditCmd(),
	)
	return cmd
}

func withStore(fn func(*profile.Store) error) error {
	store, err := profile.Load(cfg.ProfileStorePath())
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		return err
	}
	return profile.Save(cfg.ProfileStorePath(), store)
}

func newProfileCreateCmd() *cobra.Command {
	var image, backend string
	var libs, files []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *profile.Store) error {
				return s.Create(args[0], &profile.Profile{
					Image:     image,
					Backend:   backend,
					Libraries: libs,
					Files:     files,
				})
			})
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "container image")
	cmd.Flags().StringVar(&backend, "backend", "", "container backend")
	cmd.Flags().StringSliceVar(&libs, "libraries", nil, "libraries to bind, comma-separated")
	cmd.Flags().StringSliceVar(&files, "files", nil, "files to bind, comma-separated")
	return cmd
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *profile.Store) error {
				return s.Delete(args[0])
			})
		},
	}
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profile.Load(cfg.ProfileStorePath())
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(store.List(), "\n"))
			return nil
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a profile's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := profile.Load(cfg.ProfileStorePath())
			if err != nil {
				return err
			}
			p, ok := store.Get(args[0])
			if !ok {
				return e4serr.New(e4serr.ConfigurationError, args[0], fmt.Errorf("no such profile"))
			}
			fmt.Printf("image: %s\nbackend: %s\nlibraries: %s\nfiles: %s\nsource: %s\n",
				p.Image, p.Backend, strings.Join(p.Libraries, ","), strings.Join(p.Files, ","), p.Source)
			return nil
		},
	}
}

func newProfileCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a profile under a new name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *profile.Store) error {
				return s.Copy(args[0], args[1])
			})
		},
	}
}

func newProfileEditCmd() *cobra.Command {
	var image, backend string
	var addLibs, addFiles []string

	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Modify an existing profile's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *profile.Store) error {
				return s.Edit(args[0], func(p *profile.Profile) {
					if image != "" {
						p.Image = image
					}
					if backend != "" {
						p.Backend = backend
					}
					p.Libraries = append(p.Libraries, addLibs...)
					p.Files = append(p.Files, addFiles...)
				})
			})
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "new container image")
	cmd.Flags().StringVar(&backend, "backend", "", "new container backend")
	cmd.Flags().StringSliceVar(&addLibs, "add-libraries", nil, "libraries to add, comma-separated")
	cmd.Flags().StringSliceVar(&addFiles, "add-files", nil, "files to add, comma-separated")
	return cmd
}
