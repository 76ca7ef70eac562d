package endpoints

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/ingest"
	"github.com/LastGentlman/chandra/internal/ocr"
	"github.com/LastGentlman/chandra/internal/svcctx"
)

// ocrImageSchema rejects unknown fields and wrong types before decoding.
const ocrImageSchema = `{
  "type": "object",
  "required": ["image_base64"],
  "additionalProperties": false,
  "properties": {
    "image_base64": {"type": "string", "minLength": 1},
    "method": {"type": "string"},
    "include_images": {"type": "boolean"},
    "include_headers_footers": {"type": "boolean"},
    "max_output_tokens": {"type": "integer", "minimum": 1},
    "bbox_scale": {"type": "integer", "minimum": 1},
    "api_key": {"type": "string"}
  }
}`

var compileOCRImageSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ocr_image.json", strings.NewReader(ocrImageSchema)); err != nil {
		return nil, fmt.Errorf("failed to load request schema: %w", err)
	}
	return compiler.Compile("ocr_image.json")
})

// OCRImageRequest is the body of POST /api/ocr/image.
type OCRImageRequest struct {
	ImageBase64           string `json:"image_base64"`
	Method                string `json:"method,omitempty"`
	IncludeImages         *bool  `json:"include_images,omitempty"`
	IncludeHeadersFooters *bool  `json:"include_headers_footers,omitempty"`
	MaxOutputTokens       int    `json:"max_output_tokens,omitempty"`
	BBoxScale             int    `json:"bbox_scale,omitempty"`
	APIKey                string `json:"api_key,omitempty"`
}

// OCRImageEndpoint handles POST /api/ocr/image with a base64 image.
type OCRImageEndpoint struct{}

var _ api.Endpoint = (*OCRImageEndpoint)(nil)

func (e *OCRImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/ocr/image", e.handler
}

func (e *OCRImageEndpoint) RequiresAuth() bool { return true }

// handler godoc
//
//	@Summary		OCR a base64 image
//	@Description	Process one image sent as a data URI or bare base64 string
//	@Tags			ocr
//	@Accept			json
//	@Produce		json
//	@Param			request	body		OCRImageRequest	true	"Image and options"
//	@Success		200		{object}	ocr.ImageOutput
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/ocr/image [post]
func (e *OCRImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := svcctx.ConfigFrom(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	req, err := decodeOCRImageRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := cfg.DefaultOptions()
	if req.Method != "" {
		opts.Method = strings.ToLower(req.Method)
	}
	if req.IncludeImages != nil {
		opts.IncludeImages = *req.IncludeImages
	}
	if req.IncludeHeadersFooters != nil {
		opts.IncludeHeadersFooters = *req.IncludeHeadersFooters
	}
	if req.MaxOutputTokens > 0 {
		opts.MaxOutputTokens = req.MaxOutputTokens
	}
	if req.BBoxScale > 0 {
		opts.BBoxScale = req.BBoxScale
	}
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := ingest.DecodeBase64Image(req.ImageBase64, cfg.Ingest.MaxImagePixels)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := serviceFrom(r).Process(ctx, []image.Image{img}, opts)
	if err != nil {
		writeProcessError(w, r, err)
		return
	}
	out, err := ocr.NewImageOutput(resp)
	if err != nil {
		writeProcessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeOCRImageRequest validates body against the request schema and
// decodes it.
func decodeOCRImageRequest(body []byte) (*OCRImageRequest, error) {
	schema, err := compileOCRImageSchema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	var req OCRImageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

func (e *OCRImageEndpoint) Command(getClient func() *api.Client) *cobra.Command {
	var (
		method                string
		noImages              bool
		includeHeadersFooters bool
		outputFile            string
	)
	cmd := &cobra.Command{
		Use:   "ocr-image <image>",
		Short: "OCR one image on the server, sent as base64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			includeImages := !noImages
			req := OCRImageRequest{
				ImageBase64:           base64.StdEncoding.EncodeToString(data),
				Method:                method,
				IncludeImages:         &includeImages,
				IncludeHeadersFooters: &includeHeadersFooters,
			}

			var out ocr.ImageOutput
			if err := getClient().Post(cmd.Context(), "/api/ocr/image", req, &out); err != nil {
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
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the response to a file (.json or .yaml)")
	return cmd
}
