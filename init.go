package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phobologic/includecheck/internal/config"
)

// runInit implements the `includecheck init` subcommand, which writes a
// default .includecheck.toml next to the sources to analyze.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("includecheck init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun, force bool
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	fs.BoolVar(&force, "force", false, "overwrite an existing configuration file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: includecheck init [flags] [directory]

Write a default %s configuration file. The file documents every knob with a
comment, so it doubles as the configuration reference.

directory defaults to the current directory.

Flags:
`, config.FileName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dryRun {
		_, _ = fmt.Fprint(stdout, config.Default)
		return nil
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	path := filepath.Join(dir, config.FileName)

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(config.Default), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}
