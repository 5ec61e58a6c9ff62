// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"agentlock/internal/config"
	"agentlock/internal/paths"
	"agentlock/internal/policy"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default policy file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefaultPolicy(a.policyPath, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Policy ready: %s\n", a.policyPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing policy")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the policy document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := a.loadPolicy()
			if err != nil {
				return err
			}
			doc, err := pol.MarshalDocument()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(doc))
			return nil
		},
	}
}

func newPolicyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Edit the deny-path policy",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show policy status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				pol, err := a.loadPolicy()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enabled: %s\n", onOff(pol.Enabled))
				fmt.Fprintf(cmd.OutOrStdout(), "deny_paths: %d\n", len(pol.DenyPaths))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show deny paths",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				pol, err := a.loadPolicy()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enabled: %s\n", onOff(pol.Enabled))
				for _, path := range pol.DenyPaths {
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
				return nil
			},
		},
		newPolicyToggleCmd(a, "on", true),
		newPolicyToggleCmd(a, "off", false),
		newPolicyEditCmd(a, "add"),
		newPolicyEditCmd(a, "remove"),
	)
	return cmd
}

func newPolicyToggleCmd(a *app, name string, enabled bool) *cobra.Command {
	short := "Enable deny-path protection"
	if !enabled {
		short = "Disable deny-path protection"
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := a.loadPolicy()
			if err != nil {
				return err
			}
			pol.Enabled = enabled
			if err := policy.Save(a.policyPath, pol); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enabled: %s\n", onOff(pol.Enabled))
			return nil
		},
	}
}

func newPolicyEditCmd(a *app, name string) *cobra.Command {
	short := "Add deny paths"
	if name == "remove" {
		short = "Remove deny paths"
	}
	return &cobra.Command{
		Use:   name + " <path>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := a.loadPolicy()
			if err != nil {
				return err
			}
			updated, err := editDenyPaths(pol, name, args, filepath.Dir(a.policyPath))
			if err != nil {
				return err
			}
			if err := policy.Save(a.policyPath, updated); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enabled: %s\n", onOff(updated.Enabled))
			for _, path := range updated.DenyPaths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}

// editDenyPaths applies an add or remove of raw paths, normalized
// against baseDir, and returns the policy with the whole set replaced.
func editDenyPaths(pol policy.Policy, op string, rawPaths []string, baseDir string) (policy.Policy, error) {
	current := make(map[string]bool, len(pol.DenyPaths))
	for _, path := range pol.DenyPaths {
		current[path] = true
	}
	for _, raw := range rawPaths {
		normalized, err := paths.Normalize(raw, baseDir)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("invalid path %q: %v", raw, err)
		}
		if op == "remove" {
			delete(current, normalized)
		} else {
			current[normalized] = true
		}
	}
	deny := make([]string, 0, len(current))
	for path := range current {
		deny = append(deny, path)
	}
	sort.Strings(deny)
	return policy.Policy{Enabled: pol.Enabled, DenyPaths: deny}, nil
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
