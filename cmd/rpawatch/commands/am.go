package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/rpawatch/am"
	"github.com/teranos/rpawatch/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage rpawatch configuration",
	Long: `Display and manage rpawatch configuration.

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/rpawatch/am.toml)
3. User config (~/.rpawatch/am.toml)
4. Project config (am.toml, searched upward from the working directory)
5. Environment variables (RPAWATCH_* prefix, dots become underscores)

Examples:
  rpawatch am show                      # Show configuration as TOML
  rpawatch am show --format json        # Show configuration as JSON
  rpawatch am show --sources            # Show where each value came from
  rpawatch am get scanner.interval_seconds
  rpawatch am set scanner.interval_seconds 5
  rpawatch am validate`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (secrets masked)",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value using dot notation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to the user config (~/.rpawatch/am.toml)",
	Args:  cobra.ExactArgs(2),
	RunE:  runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var (
	configFormat  string
	configSources bool
	validateServe bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "List every setting with its source")
	amValidateCmd.Flags().BoolVar(&validateServe, "serve", false, "Also require everything serve needs")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
}

// encodeConfig writes v in format
func encodeConfig(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		_, err = fmt.Fprintf(w, "# rpawatch configuration\n%s", data)
		return err
	case "toml":
		data, err := toml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		_, err = fmt.Fprintf(w, "# rpawatch configuration\n%s", data)
		return err
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if configSources {
		intro := am.GetConfigIntrospection()
		data := pterm.TableData{{"Key", "Value", "Source", "From"}}
		for _, s := range intro.Settings {
			value := fmt.Sprintf("%v", s.Value)
			if len(value) > 50 {
				value = value[:47] + "..."
			}
			data = append(data, []string{s.Key, value, string(s.Source), s.SourcePath})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	return encodeConfig(cmd.OutOrStdout(), configFormat, cfg.Redacted())
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	for _, k := range am.SensitiveKeys {
		if k == key {
			fmt.Fprintln(cmd.OutOrStdout(), "********")
			return nil
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

// parseValue keeps integers, floats and booleans typed in the TOML file
func parseValue(raw string) interface{} {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	if !am.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	path, err := am.UserConfigPath()
	if err != nil {
		return err
	}
	if err := am.SetValue(path, key, parseValue(raw)); err != nil {
		return err
	}
	pterm.Success.Printf("%s written to %s\n", key, path)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	check := cfg.Validate
	if validateServe {
		check = cfg.ValidateServe
	}
	if err := check(); err != nil {
		for _, hint := range errors.GetAllHints(err) {
			pterm.Info.Println(hint)
		}
		return errors.Wrap(err, "configuration validation failed")
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}
