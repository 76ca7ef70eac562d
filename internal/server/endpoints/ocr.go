package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/config"
	"github.com/LastGentlman/chandra/internal/ocr"
	"github.com/LastGentlman/chandra/internal/svcctx"
)

// maxFormMemory is the multipart size kept in memory; the rest spills to disk.
const maxFormMemory = 32 << 20

// sniffLen is how many leading bytes are read for content type detection.
const sniffLen = 512

// OCREndpoint handles POST /api/ocr with a multipart file upload.
type OCREndpoint struct{}

var _ api.Endpoint = (*OCREndpoint)(nil)

func (e *OCREndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/ocr", e.handler
}

func (e *OCREndpoint) RequiresAuth() bool { return true }

// handler godoc
//
//	@Summary		OCR a document
//	@Description	Upload an image or PDF and get markdown, HTML, layout chunks and extracted images
//	@Tags			ocr
//	@Accept			mpfd
//	@Produce		json
//	@Param			file					formData	file	true	"Image or PDF"
//	@Param			method					formData	string	false	"vllm, hf or gemini (default from config)"
//	@Param			include_images			formData	bool	false	"Attach extracted images (default true)"
//	@Param			include_headers_footers	formData	bool	false	"Render page headers and footers (default false)"
//	@Param			max_output_tokens		formData	int		false	"Generation budget per page"
//	@Param			bbox_scale				formData	int		false	"Grid the model's boxes are expressed on"
//	@Param			page_range				formData	string	false	"PDF pages, e.g. 1-5,7,9-12"
//	@Success		200	{object}	ocr.Output
//	@Failure		400	{object}	ErrorResponse
//	@Failure		401	{object}	ErrorResponse
//	@Failure		413	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/ocr [post]
func (e *OCREndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := svcctx.ConfigFrom(ctx)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d MB upload limit", cfg.Server.MaxUploadMB))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts := cfg.DefaultOptions()
	for key, values := range r.MultipartForm.Value {
		if key == api.APIKeyField || key == "file" || len(values) == 0 {
			continue
		}
		if err := opts.Set(key, values[0]); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	fh := files[0]
	if strings.TrimSpace(fh.Filename) == "" {
		writeError(w, http.StatusBadRequest, "Empty filename")
		return
	}

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open uploaded file: %v", err))
		return
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read uploaded file: %v", err))
		return
	}
	if err := cfg.UploadPolicy().Validate(fh.Filename, head[:n]); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to rewind uploaded file: %v", err))
		return
	}

	tempDir, err := uploadDir(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create temp dir: %v", err))
		return
	}
	defer os.RemoveAll(tempDir)

	destPath := filepath.Join(tempDir, filepath.Base(fh.Filename))
	dst, err := os.Create(destPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create file: %v", err))
		return
	}
	_, err = io.Copy(dst, src)
	dst.Close()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save file: %v", err))
		return
	}

	resp, err := serviceFrom(r).ProcessFile(ctx, destPath, opts)
	if err != nil {
		writeProcessError(w, r, err)
		return
	}
	out, err := ocr.NewOutput(resp)
	if err != nil {
		writeProcessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// uploadDir creates a per-request directory under the home uploads dir, or
// the system temp dir when no home is configured.
func uploadDir(r *http.Request) (string, error) {
	if h := svcctx.HomeFrom(r.Context()); h != nil {
		return h.UploadTempDir()
	}
	return os.MkdirTemp("", "chandra-upload-*")
}

func (e *OCREndpoint) Command(getClient func() *api.Client) *cobra.Command {
	var (
		method                string
		noImages              bool
		includeHeadersFooters bool
		maxOutputTokens       int
		bboxScale             int
		pageRange             string
		outputFile            string
	)
	cmd := &cobra.Command{
		Use:   "ocr <file>",
		Short: "OCR an image or PDF on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]string{
				config.OptIncludeImages:         fmt.Sprint(!noImages),
				config.OptIncludeHeadersFooters: fmt.Sprint(includeHeadersFooters),
			}
			if method != "" {
				fields[config.OptMethod] = method
			}
			if maxOutputTokens > 0 {
				fields[config.OptMaxOutputTokens] = fmt.Sprint(maxOutputTokens)
			}
			if bboxScale > 0 {
				fields[config.OptBBoxScale] = fmt.Sprint(bboxScale)
			}
			if pageRange != "" {
				fields[config.OptPageRange] = pageRange
			}

			var out ocr.Output
			if err := getClient().PostMultipart(cmd.Context(), "/api/ocr", args[0], fields, &out); err != nil {
				return err
			}
			if outputFile != "" {
				return api.OutputToFile(out, outputFile)
			}
			return api.Output(out)
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "vllm, hf or gemini (default: server config)")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "Do not attach extracted images")
	cmd.Flags().BoolVar(&includeHeadersFooters, "include-headers-footers", false, "Render page headers and footers")
	cmd.Flags().IntVar(&maxOutputTokens, "max-output-tokens", 0, "Generation budget per page")
	cmd.Flags().IntVar(&bboxScale, "bbox-scale", 0, "Grid the model's boxes are expressed on")
	cmd.Flags().StringVar(&pageRange, "page-range", "", "PDF pages, e.g. 1-5,7,9-12")
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the response to a file (.json or .yaml)")
	return cmd
}
