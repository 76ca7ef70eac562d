package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/ocr"
	"github.com/LastGentlman/chandra/internal/providers"
)

var (
	ocrMethod                string
	ocrNoImages              bool
	ocrIncludeHeadersFooters bool
	ocrMaxOutputTokens       int
	ocrBBoxScale             int
	ocrPageRange             string
	ocrOutputDir             string
)

// OCRResult summarizes a local run.
type OCRResult struct {
	Source      string   `json:"source"`
	Method      string   `json:"method"`
	Pages       int      `json:"pages"`
	Tokens      int      `json:"tokens"`
	Chunks      int      `json:"chunks"`
	Images      int      `json:"images"`
	FailedPages []int    `json:"failed_pages,omitempty"`
	Files       []string `json:"files"`
}

var ocrCmd = &cobra.Command{
	Use:   "ocr <file>",
	Short: "OCR an image or PDF locally",
	Long: `OCR an image or PDF without running the API server.

Pages are sent to the configured model for --method and the merged result is
written as <name>.md, <name>.html and <name>_metadata.json, plus extracted
images, under ~/.chandra/output/<name>/ (or --output-dir).

Examples:
  chandra ocr scan.pdf
  chandra ocr scan.pdf --page-range 1-3,7 --method gemini
  chandra ocr photo.jpg --no-images --output-dir ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		source := args[0]

		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h, logger)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()

		opts := cfg.DefaultOptions()
		opts.IncludeImages = !ocrNoImages
		opts.IncludeHeadersFooters = ocrIncludeHeadersFooters
		opts.PageRange = ocrPageRange
		if ocrMethod != "" {
			opts.Method = strings.ToLower(ocrMethod)
		}
		if ocrMaxOutputTokens > 0 {
			opts.MaxOutputTokens = ocrMaxOutputTokens
		}
		if ocrBBoxScale > 0 {
			opts.BBoxScale = ocrBBoxScale
		}

		registry := providers.NewRegistryFromConfig(cfg.ToRegistryConfig())
		registry.SetLogger(logger)
		defer registry.Close()

		calls := &llmcall.MemoryStore{}
		sink := llmcall.NewSink(llmcall.SinkConfig{Store: calls, Logger: logger})
		sink.Start(ctx)

		svc := &ocr.Service{
			Registry: registry,
			Config:   cfg,
			Logger:   logger,
			Recorder: llmcall.NewRecorder(sink),
		}
		resp, err := svc.ProcessFile(ctx, source, opts)
		sink.Stop()
		if err != nil {
			return err
		}

		outDir := ocrOutputDir
		if outDir == "" {
			outDir = h.ResultDir(source)
		}
		name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		files, err := ocr.Save(outDir, name, resp)
		if err != nil {
			return err
		}

		failed := resp.FailedPages()
		for _, c := range calls.Calls() {
			if !c.Success {
				logger.Debug("model call failed", "page", c.PageNum, "attempt", c.Attempt, "error", c.Error)
			}
		}

		if err := api.Output(OCRResult{
			Source:      source,
			Method:      opts.Method,
			Pages:       resp.Metadata.NumPages,
			Tokens:      resp.Metadata.TotalTokenCount,
			Chunks:      resp.Metadata.TotalChunks,
			Images:      resp.Metadata.TotalImages,
			FailedPages: failed,
			Files:       files,
		}); err != nil {
			return err
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d pages failed", len(failed), resp.Metadata.NumPages)
		}
		return nil
	},
}

func init() {
	ocrCmd.Flags().StringVar(&ocrMethod, "method", "", "vllm, hf or gemini (default: default_method)")
	ocrCmd.Flags().BoolVar(&ocrNoImages, "no-images", false, "Do not extract images")
	ocrCmd.Flags().BoolVar(&ocrIncludeHeadersFooters, "include-headers-footers", false, "Render page headers and footers")
	ocrCmd.Flags().IntVar(&ocrMaxOutputTokens, "max-output-tokens", 0, "Generation budget per page")
	ocrCmd.Flags().IntVar(&ocrBBoxScale, "bbox-scale", 0, "Grid the model's boxes are expressed on")
	ocrCmd.Flags().StringVar(&ocrPageRange, "page-range", "", "PDF pages, e.g. 1-5,7,9-12")
	ocrCmd.Flags().StringVar(&ocrOutputDir, "output-dir", "", "Directory for results (default: ~/.chandra/output/<name>)")

	rootCmd.AddCommand(ocrCmd)
}
