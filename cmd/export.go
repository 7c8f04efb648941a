package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gaurav-prasanna/auditpipe/core"
	"github.com/gaurav-prasanna/auditpipe/core/output"
	"github.com/gaurav-prasanna/auditpipe/core/render"
	"github.com/gaurav-prasanna/auditpipe/site"
)

// Export flag variables.
var (
	flagHTML      bool
	flagMarkdown  bool
	flagJSON      bool
	flagPDF       bool
	flagOutputDir string
)

var exportCmd = &cobra.Command{
	Use:   "export <slug>",
	Short: "Export one published audit to a file",
	Long: `Export fetches a published audit from the configured store and writes it
in exactly one format: the full HTML page, Markdown with front matter,
structured JSON, or the PDF audit report.

Examples:
  auditpipe export tx-rn --pdf
  auditpipe export tx-rn --markdown --output_dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.BoolVar(&flagHTML, "html", false, "Write the rendered article page")
	f.BoolVar(&flagMarkdown, "markdown", false, "Export as Markdown with YAML front matter")
	f.BoolVar(&flagJSON, "json", false, "Export as structured JSON")
	f.BoolVar(&flagPDF, "pdf", false, "Export as a PDF audit report")
	f.StringVar(&flagOutputDir, "output_dir", "./output", "Directory to write output files")

	rootCmd.AddCommand(exportCmd)
}

// exportFormat is the set of format flags given to the export command.
type exportFormat struct {
	html, markdown, json, pdf bool
}

func formatFromFlags() exportFormat {
	return exportFormat{html: flagHTML, markdown: flagMarkdown, json: flagJSON, pdf: flagPDF}
}

// validate checks that exactly one output format is selected.
func (f exportFormat) validate() error {
	count := 0
	for _, on := range []bool{f.html, f.markdown, f.json, f.pdf} {
		if on {
			count++
		}
	}
	if count == 0 {
		return errors.New("exactly one output format required: --html, --markdown, --json, or --pdf")
	}
	if count > 1 {
		return errors.New("only one output format allowed")
	}
	return nil
}

// exporter returns the Exporter for the selected format. The HTML page is
// rendered by the site builder instead and has no Exporter.
func (f exportFormat) exporter(siteName string) core.Exporter {
	switch {
	case f.markdown:
		return render.NewMarkdownExporter()
	case f.json:
		return render.NewJSONExporter()
	case f.pdf:
		return render.NewPDFExporter(siteName)
	default:
		return nil
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	format := formatFromFlags()
	if err := format.validate(); err != nil {
		return err
	}
	slug := args[0]
	if !site.ValidSlug(slug) {
		return fmt.Errorf("invalid slug %q", slug)
	}
	if err := cfg.RequireStore(); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	layout, err := render.LoadLayout(cfg.Site.LayoutPath)
	if err != nil {
		return err
	}
	pages := site.FromConfig(cfg, layout)

	article, err := store.GetBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", slug, err)
	}
	if article == nil {
		return fmt.Errorf("%s: %w", slug, core.ErrNotFound)
	}

	data, ext, err := renderExport(pages, format, article)
	if err != nil {
		return err
	}

	w, err := output.New(flagOutputDir)
	if err != nil {
		return err
	}
	path, err := w.Write(slug, data, ext)
	if err != nil {
		return err
	}

	logger.Info("export written", zap.String("slug", slug), zap.String("path", path), zap.Int("bytes", len(data)))
	fmt.Printf("✓ Written: %s\n", path)
	return nil
}

func renderExport(pages *site.Builder, format exportFormat, a *core.Article) ([]byte, string, error) {
	if format.html {
		page, err := pages.Article(a)
		if err != nil {
			return nil, "", err
		}
		return []byte(page), ".html", nil
	}

	md, err := pages.ExportMarkdown(a)
	if err != nil {
		return nil, "", err
	}
	exp := format.exporter(cfg.Site.Name)
	data, err := exp.Render(md, pages.ExportMeta(a))
	if err != nil {
		return nil, "", fmt.Errorf("rendering %s: %w", a.Slug, err)
	}
	return data, exp.Extension(), nil
}
