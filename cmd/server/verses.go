package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/gita-reflect/internal/config"
	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/store"
)

func versesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verses",
		Short: "Inspect the verse library",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Search verse translations, transliterations and purports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVerses(cmd.Context(), func(ctx context.Context, verses store.VerseRepository) error {
				found, err := verses.SearchVerses(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), found)
				}
				if len(found) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No verses found.")
					return nil
				}
				for _, v := range found {
					printVerse(ctx, cmd.OutOrStdout(), verses, v)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show a verse by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid verse id %q", args[0])
			}
			return withVerses(cmd.Context(), func(ctx context.Context, verses store.VerseRepository) error {
				v, err := verses.GetVerse(ctx, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), v)
				}
				printVerse(ctx, cmd.OutOrStdout(), verses, *v)
				return nil
			})
		},
	})

	return cmd
}

func chaptersCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "List chapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVerses(cmd.Context(), func(ctx context.Context, verses store.VerseRepository) error {
				chapters, err := verses.ListChapters(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), chapters)
				}
				for _, c := range chapters {
					fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", c.ChapterNumber, c.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func withVerses(ctx context.Context, fn func(context.Context, store.VerseRepository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, cfg)

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close() }()
	return fn(ctx, storage.Verses)
}

func printVerse(ctx context.Context, w io.Writer, verses store.VerseRepository, v domain.Verse) {
	ref := strconv.Itoa(v.VerseNumber)
	if ch, err := verses.GetChapter(ctx, v.ChapterID); err == nil {
		ref = fmt.Sprintf("%d.%d", ch.ChapterNumber, v.VerseNumber)
	}
	fmt.Fprintf(w, "[%d] Bhagavad Gita %s\n", v.ID, ref)
	fmt.Fprintf(w, "  %s\n", v.Transliteration)
	fmt.Fprintf(w, "  %s\n\n", v.Translation)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
