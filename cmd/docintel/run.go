package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/docintel/detect"
)

var (
	flagTablesOnly    bool
	flagMaxConcurrent int
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract structured content from a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()
		engine, cfg, err := setupEngine(logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		if flagTablesOnly {
			tables, err := engine.ExtractTables(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			return printJSON(tables)
		}

		res, err := engine.ExtractFile(cmd.Context(), args[0], cfg)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect FILE",
	Short: "Detect a document's format",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		setupLogger()

		header, err := readHeader(args[0])
		if err != nil {
			return err
		}
		format, err := detect.DetectFromPath(args[0], header)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"format":    string(format),
			"mime_type": detect.MimeType(format),
		})
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported document formats",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		type formatInfo struct {
			Format     string   `json:"format"`
			MimeType   string   `json:"mime_type"`
			Extensions []string `json:"extensions"`
		}
		var out []formatInfo
		for _, f := range detect.Formats() {
			out = append(out, formatInfo{
				Format:     string(f),
				MimeType:   detect.MimeType(f),
				Extensions: detect.Extensions(f),
			})
		}
		return printJSON(out)
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch FILE...",
	Short: "Extract many documents with bounded concurrency",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()
		engine, cfg, err := setupEngine(logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		if flagMaxConcurrent > 0 {
			cfg.MaxConcurrent = flagMaxConcurrent
		}
		results := engine.Batch(cmd.Context(), args, cfg)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if err := printJSON(results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&flagTablesOnly, "tables", false, "output only the extracted tables")
	batchCmd.Flags().IntVar(&flagMaxConcurrent, "max-concurrent", 0, "maximum concurrent extractions (0 = config default)")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 8192)
	n, _ := f.Read(buf)
	return buf[:n], nil
}
