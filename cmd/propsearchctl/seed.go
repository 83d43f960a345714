package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert catalog listings from a YAML fixture file",
	Long: `Upserts every listing in the fixture file. Listings whose embedding text
changed lose their stale vectors; run "propsearchctl backfill" afterwards.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringP("file", "f", "fixtures/properties.yaml", "fixture file")
	rootCmd.AddCommand(seedCmd)
}

// fixtureFile is the seed document layout.
type fixtureFile struct {
	Properties []fixture `yaml:"properties"`
}

type fixture struct {
	ID              string                   `yaml:"id"`
	Title           map[domain.Locale]string `yaml:"title"`
	Description     map[domain.Locale]string `yaml:"description"`
	TransactionType string                   `yaml:"transaction_type"`
	PropertyType    string                   `yaml:"property_type"`
	Bedrooms        int                      `yaml:"bedrooms"`
	Bathrooms       int                      `yaml:"bathrooms"`
	Area            float64                  `yaml:"area"`
	Price           float64                  `yaml:"price"`
	Province        string                   `yaml:"province"`
	District        string                   `yaml:"district"`
	Amenities       []property.Label         `yaml:"amenities"`
	Tags            []property.Label         `yaml:"tags"`
	Published       *bool                    `yaml:"published"`
	Priority        int                      `yaml:"priority"`
	CreatedAt       time.Time                `yaml:"created_at"`
}

// loadFixtures decodes fixtures. Listings are published unless stated otherwise;
// a missing created_at becomes now.
func loadFixtures(r io.Reader, now time.Time) ([]property.Property, error) {
	var f fixtureFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Properties))
	out := make([]property.Property, 0, len(f.Properties))
	for i, fx := range f.Properties {
		if _, dup := seen[fx.ID]; dup {
			return nil, fmt.Errorf("fixture %d: duplicate id %q", i, fx.ID)
		}
		seen[fx.ID] = struct{}{}

		p := fx.toProperty(now)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("fixture %d (%s): %w", i, fx.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (fx *fixture) toProperty(now time.Time) property.Property {
	published := true
	if fx.Published != nil {
		published = *fx.Published
	}
	created := fx.CreatedAt
	if created.IsZero() {
		created = now
	}
	return property.Property{
		ID:              fx.ID,
		Title:           fx.Title,
		Description:     fx.Description,
		TransactionType: property.TransactionType(fx.TransactionType),
		Type:            property.Type(fx.PropertyType),
		Bedrooms:        fx.Bedrooms,
		Bathrooms:       fx.Bathrooms,
		Area:            fx.Area,
		Price:           fx.Price,
		Province:        fx.Province,
		District:        fx.District,
		Amenities:       fx.Amenities,
		Tags:            fx.Tags,
		Published:       published,
		Priority:        fx.Priority,
		CreatedAt:       created,
		UpdatedAt:       now,
	}
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()

	props, err := loadFixtures(f, time.Now().UTC())
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.catalog.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	var created, updated int
	for i := range props {
		isNew, err := a.catalog.Upsert(ctx, &props[i], a.embedder.Model())
		if err != nil {
			return fmt.Errorf("upsert %s: %w", props[i].ID, err)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	a.logger.Info("Seed complete",
		zap.String("file", path),
		zap.Int("created", created),
		zap.Int("updated", updated),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d listings (%d new, %d updated)\n", len(props), created, updated)
	return nil
}
