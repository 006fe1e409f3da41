package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"gopkg.in/yaml.v3"
)

// regionsFile is the on-disk selection format. YAML is a superset of
// JSON, so the API's own {"watermarks": [...]} body loads too.
type regionsFile struct {
	Watermarks []client.Region `yaml:"watermarks"`
}

// loadRegionsFile reads a list of regions, either bare or under a
// watermarks key.
func loadRegionsFile(path string) ([]client.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []client.Region
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, validateRegions(list)
	}

	var f regionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Watermarks, validateRegions(f.Watermarks)
}

// parseRegion reads "x,y,width,height" with an optional "@seconds"
// suffix for the frame the region was picked on.
func parseRegion(s string) (client.Region, error) {
	var r client.Region
	spec, at, hasAt := strings.Cut(strings.TrimSpace(s), "@")

	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return r, fmt.Errorf("region %q: want x,y,width,height", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r, fmt.Errorf("region %q: %q is not a number", s, p)
		}
		vals[i] = v
	}
	r = client.Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}

	if hasAt {
		ts, err := strconv.ParseFloat(strings.TrimSpace(at), 64)
		if err != nil {
			return r, fmt.Errorf("region %q: timestamp %q is not a number", s, at)
		}
		r.Timestamp = &ts
	}
	return r, validateRegions([]client.Region{r})
}

func validateRegions(regions []client.Region) error {
	for i, r := range regions {
		if r.X < 0 || r.Y < 0 {
			return fmt.Errorf("region %d: x and y must not be negative", i+1)
		}
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("region %d: width and height must be positive", i+1)
		}
	}
	return nil
}

// collectRegions merges --regions-file and repeated --region flags in
// that order.
func collectRegions(file string, specs []string) ([]client.Region, error) {
	var regions []client.Region
	if file != "" {
		fromFile, err := loadRegionsFile(file)
		if err != nil {
			return nil, err
		}
		regions = append(regions, fromFile...)
	}
	for _, s := range specs {
		r, err := parseRegion(s)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}
