// Package docs provides generated OpenAPI documentation.
//
// Chandra OCR API
//
//	@title			Chandra OCR API
//	@version		1.0
//	@description	Layout-aware OCR for images and PDFs. Returns markdown, HTML, layout chunks and extracted images.
//
//	@license.name	Apache 2.0
//	@license.url	https://www.apache.org/licenses/LICENSE-2.0
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
//
//	@securityDefinitions.apikey	APIKey
//	@in							header
//	@name						Authorization
package docs

//go:generate swag init -g ../cmd/chandra/serve.go -o . --parseDependency --parseInternal
