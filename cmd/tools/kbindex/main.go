package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "kbindex",
		Short: "Build and query the insurance knowledge index",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("LIFELINE_CONFIG"), "config file")

	load := func() (*config.Config, error) {
		_ = godotenv.Load()
		return config.LoadFrom(cfgPath)
	}
	root.AddCommand(indexCmd(load), searchCmd(load))
	return root
}

func indexCmd(load func() (*config.Config, error)) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk the knowledge directory and write it to the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Knowledge.Dir = dir
			}
			backend, err := knowledge.Open(cfg, logger.New("info", "console"))
			if err != nil {
				return err
			}
			defer backend.Close()
			return runIndex(cmd.Context(), cmd.OutOrStdout(), backend, cfg.Knowledge)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "knowledge directory (overrides knowledge.dir)")
	return cmd
}

func searchCmd(load func() (*config.Config, error)) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print the formatted context for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			backend, err := knowledge.Open(cfg, logger.New("warn", "console"))
			if err != nil {
				return err
			}
			defer backend.Close()
			return runSearch(cmd.Context(), cmd.OutOrStdout(), backend, strings.Join(args, " "), k)
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 2, "number of passages")
	return cmd
}

func runIndex(ctx context.Context, out io.Writer, backend knowledge.Indexer, kc config.KnowledgeConfig) error {
	n, err := knowledge.IndexDir(ctx, backend, kc.Dir, knowledge.NewChunker(kc.ChunkSize, kc.ChunkOverlap))
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(out, "no .md or .txt files found under %s\n", kc.Dir)
		return nil
	}
	fmt.Fprintf(out, "indexed %d chunks from %s\n", n, kc.Dir)
	return nil
}

func runSearch(ctx context.Context, out io.Writer, r knowledge.Retriever, query string, k int) error {
	passages, err := r.Search(ctx, query, k)
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		fmt.Fprintln(out, "no relevant passages")
		return nil
	}
	fmt.Fprintln(out, knowledge.FormatContext(passages))
	return nil
}
