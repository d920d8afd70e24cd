package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/product-designer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// LoadRules parses a pricing rules file. Files ending in .json are read as
// JSON, everything else as YAML.
func LoadRules(filePath string) ([]models.RuleGroup, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	format := "yaml"
	if strings.EqualFold(filepath.Ext(filePath), ".json") {
		format = "json"
	}
	return LoadRulesFromReader(file, format)
}

// LoadRulesFromReader parses rules from an io.Reader. The document is either
// a bare array of rule groups or an object with a "groups" key.
func LoadRulesFromReader(r io.Reader, format string) ([]models.RuleGroup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var groups []models.RuleGroup
	if format == "json" {
		err = decodeRulesJSON(data, &groups)
	} else {
		err = decodeRulesYAML(data, &groups)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing pricing rules: %w", err)
	}

	for i := range groups {
		if err := normalizeGroup(&groups[i]); err != nil {
			return nil, fmt.Errorf("rule group %d: %w", i, err)
		}
	}
	return groups, nil
}

func decodeRulesJSON(data []byte, out *[]models.RuleGroup) error {
	if data[0] == '[' {
		return json.Unmarshal(data, out)
	}
	var doc models.PricingRules
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*out = doc.Groups
	return nil
}

func decodeRulesYAML(data []byte, out *[]models.RuleGroup) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		return node.Decode(out)
	}
	var doc models.PricingRules
	if err := node.Decode(&doc); err != nil {
		return err
	}
	*out = doc.Groups
	return nil
}

func normalizeGroup(g *models.RuleGroup) error {
	if g.Property == "" {
		return fmt.Errorf("missing property")
	}
	switch g.Type {
	case "":
		g.Type = models.MatchAny
	case models.MatchAny, models.MatchAll:
	default:
		return fmt.Errorf("unknown match type %q", g.Type)
	}
	for i, r := range g.Rules {
		if !validOperator(r.Operator) {
			return fmt.Errorf("rule %d: unknown operator %q", i, r.Operator)
		}
	}
	return nil
}

func validOperator(op string) bool {
	switch op {
	case "=", "==", "!=", ">", ">=", "<", "<=":
		return true
	}
	return false
}
