package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/vidwatch/internal/config"
)

var (
	addName   string
	addDryRun bool
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a creator page to the watch list",
	Args:  cobra.ExactArgs(1),
	RunE:  addAction,
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "display name for the asset")
	addCmd.Flags().BoolVar(&addDryRun, "dry-run", false, "show what would be added without modifying config")
}

func addAction(cmd *cobra.Command, args []string) error {
	link := strings.TrimSpace(args[0])
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	registry, err := newRegistry(cfg, slog.Default())
	if err != nil {
		return err
	}
	adapter, err := registry.Resolve(link)
	if err != nil {
		return fmt.Errorf("%w (supported: %s)", err, strings.Join(registry.Hosts(), ", "))
	}

	asset := config.Asset{Name: addName, Link: link}
	if cfg.AssetByID(asset.ID()) != nil {
		fmt.Fprintf(out, "Asset %s (%s) already present, nothing to add.\n", asset.DisplayName(), link)
		return nil
	}

	if addDryRun {
		fmt.Fprintf(out, "Would add %s asset %s:\n  + %s\n", adapter.Name(), asset.DisplayName(), link)
		return nil
	}

	// Edit the yaml.Node tree so comments and layout survive.
	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	if err := appendAsset(configPath, asset); err != nil {
		return fmt.Errorf("add asset: %w", err)
	}

	// Reload to catch anything validate rejects before reporting success.
	if _, err := config.Load(configDir); err != nil {
		return err
	}
	fmt.Fprintf(out, "Added %s asset %s (id %s).\n", adapter.Name(), asset.DisplayName(), asset.ID())
	return nil
}

// appendAsset reads config.yaml as a yaml.Node tree, appends asset to the
// assets sequence (creating it when missing), and writes back.
func appendAsset(configPath string, asset config.Asset) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}

	assets, err := assetsNode(&doc)
	if err != nil {
		return err
	}

	entry := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if asset.Name != "" {
		entry.Content = append(entry.Content, scalar("name"), scalar(asset.Name))
	}
	entry.Content = append(entry.Content, scalar("link"), scalar(asset.Link))

	assets.Style = 0 // an empty "assets: []" becomes a block list
	assets.Content = append(assets.Content, entry)

	info, err := os.Stat(configPath)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(configPath, out, info.Mode().Perm())
}

// assetsNode returns the sequence node under the top-level "assets" key.
func assetsNode(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	root := doc
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			// Empty file.
			root = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			doc.Content = []*yaml.Node{root}
		} else {
			root = doc.Content[0]
		}
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config.yaml is not a mapping")
	}

	if seq := findMapValue(root, "assets"); seq != nil {
		switch seq.Kind {
		case yaml.SequenceNode:
			return seq, nil
		case yaml.ScalarNode:
			if seq.Tag == "!!null" {
				seq.Kind, seq.Tag, seq.Value = yaml.SequenceNode, "!!seq", ""
				return seq, nil
			}
		}
		return nil, fmt.Errorf("assets in config.yaml is not a list")
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	root.Content = append([]*yaml.Node{scalar("assets"), seq}, root.Content...)
	return seq, nil
}

func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
