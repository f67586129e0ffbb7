/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/jjudge-oj/identity/internal/notify"
	"github.com/jjudge-oj/identity/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage email template overrides",
}

var templatesPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the built-in email templates to the templates bucket",
	Long: `Uploads the built-in email templates under TEMPLATES_PREFIX so they can be
edited in place. The server picks up edited copies on its next start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		bucket, err := storage.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if bucket == nil {
			return errors.New("TEMPLATES_BACKEND is none; nothing to push to")
		}
		defer func() { _ = bucket.Close() }()

		if err := bucket.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket %s: %w", bucket.Bucket(), err)
		}

		files, err := notify.DefaultTemplateFiles()
		if err != nil {
			return err
		}
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			key := cfg.Templates.Prefix + name
			data := files[name]
			if err := bucket.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "text/html; charset=utf-8"); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			logger.Info("template uploaded", zap.String("bucket", bucket.Bucket()), zap.String("key", key))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesPushCmd)
}
