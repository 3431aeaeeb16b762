package datadog

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// getTags accepts either a YAML sequence or a comma separated string such as "env:prod,team:data".
func getTags(tags any) []string {
	if tags == nil {
		return []string{}
	}

	if csv, ok := tags.(string); ok {
		retTags := []string{}
		for _, tag := range strings.Split(csv, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				retTags = append(retTags, tag)
			}
		}

		return retTags
	}

	// Yaml decodes lists as []any, round-trip it to get strings back.
	yamlBytes, err := yaml.Marshal(tags)
	if err != nil {
		return []string{}
	}

	var retTags []string
	if err = yaml.Unmarshal(yamlBytes, &retTags); err != nil {
		return []string{}
	}

	return retTags
}

// toDatadogTags renders operation tags as sorted key:value pairs.
func toDatadogTags(tags map[string]string) []string {
	retTags := make([]string, 0, len(tags))
	for key, val := range tags {
		retTags = append(retTags, fmt.Sprintf("%s:%s", key, val))
	}

	slices.Sort(retTags)
	return retTags
}
