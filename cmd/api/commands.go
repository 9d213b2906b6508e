package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/carebridge/carebridge-api/internal/config"
	"github.com/carebridge/carebridge-api/internal/models"
	"github.com/carebridge/carebridge-api/internal/store"
)

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, db *mongo.Database) error {
				if err := store.EnsureIndexes(ctx, db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Indexes are up to date.")
				return nil
			})
		},
	}
}

func hospitalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hospitals",
		Short: "Manage hospitals",
	}

	// Staff accounts need a hospital to register against, so the first one
	// has to be created from here.
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a hospital",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			address, _ := cmd.Flags().GetString("address")
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			phone, _ := cmd.Flags().GetString("phone")
			email, _ := cmd.Flags().GetString("email")

			h := models.Hospital{
				Name:     strings.TrimSpace(name),
				Address:  strings.TrimSpace(address),
				Location: models.NewPoint(lat, lng),
				Phone:    phone,
				Email:    email,
			}
			if h.Name == "" || h.Address == "" {
				return fmt.Errorf("--name and --address are required")
			}
			if !h.Location.Valid() {
				return fmt.Errorf("--lat must be in [-90, 90] and --lng in [-180, 180]")
			}

			return withDatabase(cmd.Context(), func(ctx context.Context, db *mongo.Database) error {
				if err := store.NewHospitalStore(db).Create(ctx, &h); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created hospital %q with id %s\n", h.Name, h.ID.Hex())
				return nil
			})
		},
	}
	addCmd.Flags().String("name", "", "Hospital name")
	addCmd.Flags().String("address", "", "Street address")
	addCmd.Flags().Float64("lat", 0, "Latitude")
	addCmd.Flags().Float64("lng", 0, "Longitude")
	addCmd.Flags().String("phone", "", "Contact phone number")
	addCmd.Flags().String("email", "", "Contact email")
	_ = addCmd.MarkFlagRequired("lat")
	_ = addCmd.MarkFlagRequired("lng")

	cmd.AddCommand(addCmd)
	return cmd
}

// withDatabase loads the configuration, connects, and runs fn.
func withDatabase(parent context.Context, fn func(ctx context.Context, db *mongo.Database) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	client, db, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())
	return fn(ctx, db)
}
