package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamostudio/restack/domain/apptype"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate app definition files",
	Long: `Validate all app definition files in a directory.

Checks that each definition parses, every resource schema compiles, expiry
durations are well-formed and views declare a remap.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir := "apps"
	if len(args) == 1 {
		dir = args[0]
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	var failures int
	var checked int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		checked++

		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", path, err)
			failures++
			continue
		}

		def, err := apptype.Parse(b)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", path, err)
			failures++
			continue
		}

		types := make([]string, 0, len(def.Resources))
		for t := range def.Resources {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Printf("✓ %s: app %q (%s)\n", path, def.Name, strings.Join(types, ", "))
	}

	if checked == 0 {
		fmt.Printf("no app definitions found in %s\n", dir)
		return nil
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failures, checked)
	}
	fmt.Printf("%d definitions valid\n", checked)
	return nil
}
