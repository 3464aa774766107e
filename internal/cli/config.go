// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get <key>           Print one value
//	set <key> <value>   Set a value in the config file
//	keys                List every key
//	init                Write a default config file
//	reset               Overwrite the config file with defaults (needs --yes)
//	path                Show the config file path
//
// Examples:
//
//	ragchat config set backend.url http://localhost:8000
//	ragchat config set defaults.model llama3
//	ragchat config set storage.enabled false
//	ragchat config get ui.theme
//
// Keys use dot notation over the TOML section names. show and get report
// the effective values, including RAGCHAT_* environment overrides; set
// edits only the file.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/VINKAS7/ragchat/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return handleConfigShow(args)
	case "get":
		return handleConfigGet(args)
	case "set":
		return handleConfigSet(args)
	case "keys":
		return handleConfigKeys(args)
	case "init":
		return handleConfigWrite(args, false)
	case "reset":
		return handleConfigWrite(args, true)
	case "path":
		return handleConfigPath(args)
	}
	return NewValidationErrorWithExample("subcommand", args.Subcommand,
		"want show, get, set, keys, init, reset or path", "ragchat config show")
}

func handleConfigShow(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config", cfg).Print()
	}
	path, _ := config.ConfigPathTOML()
	fmt.Fprintln(stdout, render(DimStyle, "# "+path))
	fmt.Fprint(stdout, cfg.String())
	return nil
}

func handleConfigGet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "ragchat config get backend.url")
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	v, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return NewValidationErrorWithExample("key", args.ConfigKey, err.Error(), "ragchat config keys")
	}
	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{"key": args.ConfigKey, "value": v}).Print()
	}
	fmt.Fprintln(stdout, v)
	return nil
}

// fileConfig loads the config file without environment overrides, so set
// does not persist values that came from the environment.
func fileConfig() (*config.Config, string, error) {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return nil, "", err
	}
	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return nil, "", err
		}
	}
	return cfg, path, nil
}

func handleConfigSet(args Args) error {
	const usage = "ragchat config set defaults.model llama3"
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", usage)
	}
	if args.ConfigVal == "" {
		return ErrMissingArgument("value", usage)
	}

	cfg, path, err := fileConfig()
	if err != nil {
		return err
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return NewValidationErrorWithExample("key", args.ConfigKey, err.Error(), usage)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config", map[string]string{"key": args.ConfigKey, "value": args.ConfigVal}).Print()
	}
	printSuccess(args, "%s = %s", args.ConfigKey, args.ConfigVal)
	return nil
}

func handleConfigKeys(args Args) error {
	keys := config.GetAllKeys()
	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{"keys": keys, "env": config.EnvKeys()}).Print()
	}
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	if !args.Quiet {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, render(DimStyle, "Environment: "+strings.Join(config.EnvKeys(), ", ")))
	}
	return nil
}

// handleConfigWrite writes the defaults. An existing file is replaced only
// for reset with --yes.
func handleConfigWrite(args Args, reset bool) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if !reset {
			return NewValidationErrorWithExample("config", path, "already exists", "ragchat config reset --yes")
		}
		if !args.Confirm {
			return NewValidationErrorWithExample("confirm", "", "reset overwrites "+path, "ragchat config reset --yes")
		}
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config", map[string]string{"path": path}).Print()
	}
	printSuccess(args, "Wrote %s", path)
	return nil
}

func handleConfigPath(args Args) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config", map[string]string{"path": path}).Print()
	}
	fmt.Fprintln(stdout, path)
	return nil
}
